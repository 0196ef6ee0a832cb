package keygen

import (
	"math/big"

	"github.com/scionproto/scion/pkg/private/serrors"
)

// DefaultIterations is the number of Fermat rounds used by IsPrime callers
// that do not pick their own.
const DefaultIterations = 5

// MaxPrimeAttempts bounds the candidate loop of GeneratePrime. A search of a
// realistic bit-length needs a few dozen candidates; hitting the cap means
// the parameters can never produce a prime.
const MaxPrimeAttempts = 1 << 20

// ErrPrimeSearchExhausted is returned when GeneratePrime hits MaxPrimeAttempts.
var ErrPrimeSearchExhausted = serrors.New("prime search exhausted")

// SmallPrimes is the trial-division table. It starts at 3: even candidates
// never reach it because the low bit is always set.
var SmallPrimes = []int64{
	3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43,
	47, 53, 59, 61, 67, 71, 73, 79, 83, 89, 97,
}

var smallPrimes = func() []*big.Int {
	out := make([]*big.Int, len(SmallPrimes))
	for i, p := range SmallPrimes {
		out[i] = big.NewInt(p)
	}
	return out
}()

// IsPrime reports whether n is a probable prime. It runs trial division by
// SmallPrimes followed by iterations rounds of the Fermat test with bases
// drawn from src. Carmichael numbers without small factors pass.
func (src *Source) IsPrime(n *big.Int, iterations int) bool {
	if n.Cmp(two) < 0 {
		return false
	}
	for _, p := range smallPrimes {
		if n.Cmp(p) == 0 {
			return true
		}
	}
	r := new(big.Int)
	for _, p := range smallPrimes {
		if r.Mod(n, p).Sign() == 0 {
			return false
		}
	}

	nMinus1 := new(big.Int).Sub(n, one)
	nMinus2 := new(big.Int).Sub(n, two)
	for i := 0; i < iterations; i++ {
		a := src.Int(two, nMinus2)
		if r.Exp(a, nMinus1, n).Cmp(one) != 0 {
			return false
		}
	}
	return true
}

// GeneratePrime returns a probable prime of exactly bits bits. The top and
// bottom bits are always set; the others are drawn one at a time.
func (src *Source) GeneratePrime(bits, iterations int) (*big.Int, error) {
	if bits < 3 {
		return nil, serrors.New("prime bit-length too small", "bits", bits)
	}
	for attempt := 0; attempt < MaxPrimeAttempts; attempt++ {
		candidate := new(big.Int)
		candidate.SetBit(candidate, bits-1, 1)
		candidate.SetBit(candidate, 0, 1)
		for i := 1; i < bits-1; i++ {
			if src.Bit() == 1 {
				candidate.SetBit(candidate, i, 1)
			}
		}
		if src.IsPrime(candidate, iterations) {
			return candidate, nil
		}
	}
	return nil, serrors.Wrap("generating prime", ErrPrimeSearchExhausted,
		"bits", bits, "attempts", MaxPrimeAttempts)
}
