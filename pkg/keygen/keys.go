// Package keygen produces the RSA-shaped key material used by the trust
// authorities: two probable primes, the modulus and the public and private
// exponents.
//
// The construction is intentionally weak. Primes come from a clock-seeded
// linear-congruential source and are accepted after a Fermat test; default
// primes are 64 bits. Nothing here is suitable for protecting real data.
package keygen

import (
	"math/big"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/sig"
)

// DefaultBits is the default prime bit-length.
const DefaultBits = 64

// PublicExponentStart is the first public exponent tried.
const PublicExponentStart = 65537

// ErrNotInvertible is returned by ModInverse when a and m share a factor.
var ErrNotInvertible = serrors.New("value not invertible")

// KeyPair holds the key material of one authority or client.
type KeyPair struct {
	P *big.Int
	Q *big.Int
	N *big.Int
	E *big.Int
	D *big.Int
}

// PublicKey returns (e, n).
func (k KeyPair) PublicKey() sig.PublicKey {
	return sig.PublicKey{E: new(big.Int).Set(k.E), N: new(big.Int).Set(k.N)}
}

// Phi returns (p-1)(q-1).
func (k KeyPair) Phi() *big.Int {
	return phi(k.P, k.Q)
}

// Generator draws key pairs from one Source.
type Generator struct {
	Source *Source
	// Iterations is the number of Fermat rounds per candidate. Zero means
	// DefaultIterations.
	Iterations int
}

// NewGenerator returns a Generator backed by a fresh wall-clock Source.
func NewGenerator() *Generator {
	return &Generator{Source: NewSource()}
}

var defaultGenerator = NewGenerator()

// Generate returns a key pair built from two bits-length primes using the
// process-wide generator.
func Generate(bits int) (KeyPair, error) {
	return defaultGenerator.Generate(bits)
}

// IsPrime runs the probable-prime test with the process-wide source.
func IsPrime(n *big.Int, iterations int) bool {
	return defaultGenerator.Source.IsPrime(n, iterations)
}

// Generate returns a key pair built from two distinct bits-length primes.
// e is the smallest odd integer from 65537 upwards that is coprime with
// φ(n), d its inverse modulo φ(n).
func (g *Generator) Generate(bits int) (KeyPair, error) {
	iterations := g.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}

	p, err := g.Source.GeneratePrime(bits, iterations)
	if err != nil {
		return KeyPair{}, err
	}
	var q *big.Int
	for attempt := 0; ; attempt++ {
		if attempt == MaxPrimeAttempts {
			return KeyPair{}, serrors.Wrap("drawing distinct primes", ErrPrimeSearchExhausted,
				"bits", bits)
		}
		if q, err = g.Source.GeneratePrime(bits, iterations); err != nil {
			return KeyPair{}, err
		}
		if p.Cmp(q) != 0 {
			break
		}
	}

	n := new(big.Int).Mul(p, q)
	fi := phi(p, q)
	e := big.NewInt(PublicExponentStart)
	for GCD(e, fi).Cmp(one) != 0 {
		e.Add(e, two)
	}
	d, err := ModInverse(e, fi)
	if err != nil {
		return KeyPair{}, serrors.Wrap("computing private exponent", err)
	}
	return KeyPair{P: p, Q: q, N: n, E: e, D: d}, nil
}

// GCD returns the greatest common divisor of a and b using Euclid's
// algorithm.
func GCD(a, b *big.Int) *big.Int {
	x, y := new(big.Int).Set(a), new(big.Int).Set(b)
	for y.Sign() != 0 {
		x, y = y, x.Mod(x, y)
	}
	return x
}

// ModInverse returns x such that a*x ≡ 1 (mod m), computed with the
// extended Euclidean algorithm. For m == 1 it returns 0.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Cmp(one) == 0 {
		return big.NewInt(0), nil
	}
	a, m0 := new(big.Int).Set(a), new(big.Int).Set(m)
	m = new(big.Int).Set(m)
	x0, x1 := big.NewInt(0), big.NewInt(1)
	for a.Cmp(one) > 0 {
		if m.Sign() == 0 {
			return nil, ErrNotInvertible
		}
		q := new(big.Int).Quo(a, m)
		a, m = m, new(big.Int).Mod(a, m)
		x0, x1 = new(big.Int).Sub(x1, new(big.Int).Mul(q, x0)), x0
	}
	if a.Sign() == 0 {
		return nil, ErrNotInvertible
	}
	if x1.Sign() < 0 {
		x1.Add(x1, m0)
	}
	return x1, nil
}

func phi(p, q *big.Int) *big.Int {
	pm := new(big.Int).Sub(p, one)
	qm := new(big.Int).Sub(q, one)
	return pm.Mul(pm, qm)
}
