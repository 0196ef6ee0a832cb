package keygen

import (
	"math/big"
	"sync"
	"time"
)

// lcgMultiplier is the multiplier applied to the seed on every draw.
var lcgMultiplier = big.NewInt(25214903917)

// Source is the linear-congruential-like random source used for prime search.
//
// The seed starts at the wall-clock time in milliseconds and on every draw
// becomes (seed + now) * 25214903917. The seed is never reduced, so it grows
// with every draw. This is not a cryptographic generator: the reachable
// primes are shaped by the clock and by the parity of the seed. It is kept
// as is because it determines which key material a deployment can produce.
type Source struct {
	mu   sync.Mutex
	seed *big.Int
	now  func() int64
}

// NewSource returns a Source seeded from the wall clock.
func NewSource() *Source {
	return NewSourceWithClock(func() int64 { return time.Now().UnixMilli() })
}

// NewSourceWithClock returns a Source that reads milliseconds from now. The
// initial seed is taken from the same clock.
func NewSourceWithClock(now func() int64) *Source {
	return &Source{
		seed: big.NewInt(now()),
		now:  now,
	}
}

// Int returns an integer in [min, max]. When max < min the result follows
// floored modulo semantics of the span, which matches the behaviour the
// primality test relies on for n == 2.
func (s *Source) Int(min, max *big.Int) *big.Int {
	span := new(big.Int).Sub(max, min)
	span.Add(span, one)
	if span.Sign() == 0 {
		panic("keygen: empty random range")
	}

	s.mu.Lock()
	s.step()
	r := new(big.Int).Abs(s.seed)
	s.mu.Unlock()

	r.Mod(r, new(big.Int).Abs(span))

	if span.Sign() < 0 && r.Sign() != 0 {
		r.Add(r, span)
	}
	return r.Add(r, min)
}

// Bit returns 0 or 1. It equals Int(0, 1): the parity of |seed| is the
// parity of seed.
func (s *Source) Bit() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.seed.Bit(0)
}

// step advances the seed. The caller holds mu.
func (s *Source) step() {
	s.seed.Add(s.seed, big.NewInt(s.now()))
	s.seed.Mul(s.seed, lcgMultiplier)
}

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)
