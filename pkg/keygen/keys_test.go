package keygen

import (
	"errors"
	"math/big"
	"testing"
)

func TestGenerateKeyProperties(t *testing.T) {
	g := NewGenerator()
	for _, bits := range []int{16, 32, 64} {
		k, err := g.Generate(bits)
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", bits, err)
		}
		if k.P.Cmp(k.Q) == 0 {
			t.Errorf("bits=%d: p == q (%v)", bits, k.P)
		}
		if k.P.BitLen() != bits || k.Q.BitLen() != bits {
			t.Errorf("bits=%d: unexpected prime lengths %d and %d", bits, k.P.BitLen(), k.Q.BitLen())
		}
		if k.P.Bit(0) != 1 || k.Q.Bit(0) != 1 {
			t.Errorf("bits=%d: even prime", bits)
		}
		if !g.Source.IsPrime(k.P, DefaultIterations) || !g.Source.IsPrime(k.Q, DefaultIterations) {
			t.Errorf("bits=%d: generated factor fails IsPrime", bits)
		}
		if n := new(big.Int).Mul(k.P, k.Q); n.Cmp(k.N) != 0 {
			t.Errorf("bits=%d: n = %v, want p*q = %v", bits, k.N, n)
		}
		ed := new(big.Int).Mul(k.E, k.D)
		if ed.Mod(ed, k.Phi()).Cmp(big.NewInt(1)) != 0 {
			t.Errorf("bits=%d: e*d mod phi != 1", bits)
		}
		if k.E.Cmp(big.NewInt(PublicExponentStart)) < 0 || k.E.Bit(0) != 1 {
			t.Errorf("bits=%d: unexpected public exponent %v", bits, k.E)
		}
	}
}

func TestGeneratePublicExponentIsSmallestCoprime(t *testing.T) {
	k, err := NewGenerator().Generate(32)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	phi := k.Phi()
	for e := big.NewInt(PublicExponentStart); e.Cmp(k.E) < 0; e.Add(e, two) {
		if GCD(e, phi).Cmp(one) == 0 {
			t.Fatalf("exponent %v is coprime with phi but %v was chosen", e, k.E)
		}
	}
}

func TestGenerateRejectsTinyBitLength(t *testing.T) {
	if _, err := NewGenerator().Generate(2); err == nil {
		t.Fatal("expected error for 2-bit primes")
	}
}

func TestIsPrimeSmallTable(t *testing.T) {
	src := NewSource()
	for _, p := range SmallPrimes {
		if !src.IsPrime(big.NewInt(p), DefaultIterations) {
			t.Errorf("IsPrime(%d) = false", p)
		}
	}
	for i, p := range SmallPrimes {
		for _, q := range SmallPrimes[i:] {
			n := big.NewInt(p * q)
			if src.IsPrime(n, DefaultIterations) {
				t.Errorf("IsPrime(%d*%d) = true", p, q)
			}
		}
	}
}

func TestIsPrimeEdgeCases(t *testing.T) {
	src := NewSource()
	tests := map[int64]bool{
		-7:   false,
		0:    false,
		1:    false,
		2:    false, // 2 is not in the table and fails the Fermat round
		4:    false,
		101:  true,
		7919: true,
		7917: false,
	}
	for n, want := range tests {
		if got := src.IsPrime(big.NewInt(n), DefaultIterations); got != want {
			t.Errorf("IsPrime(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestModInverse(t *testing.T) {
	tests := []struct {
		a, m int64
	}{
		{3, 11},
		{10, 17},
		{65537, 3120},
		{7, 1},
	}
	for _, tc := range tests {
		got, err := ModInverse(big.NewInt(tc.a), big.NewInt(tc.m))
		if err != nil {
			t.Fatalf("ModInverse(%d, %d) failed: %v", tc.a, tc.m, err)
		}
		check := new(big.Int).Mul(got, big.NewInt(tc.a))
		check.Mod(check, big.NewInt(tc.m))
		if tc.m != 1 && check.Cmp(one) != 0 {
			t.Errorf("ModInverse(%d, %d) = %v, not an inverse", tc.a, tc.m, got)
		}
		if tc.m == 1 && got.Sign() != 0 {
			t.Errorf("ModInverse(%d, 1) = %v, want 0", tc.a, got)
		}
	}

	if _, err := ModInverse(big.NewInt(4), big.NewInt(6)); !errors.Is(err, ErrNotInvertible) {
		t.Errorf("expected ErrNotInvertible, got %v", err)
	}
}

func TestSourceRange(t *testing.T) {
	var clock int64 = 1700000000000
	src := NewSourceWithClock(func() int64 {
		clock++
		return clock
	})
	lo, hi := big.NewInt(10), big.NewInt(20)
	for i := 0; i < 200; i++ {
		v := src.Int(lo, hi)
		if v.Cmp(lo) < 0 || v.Cmp(hi) > 0 {
			t.Fatalf("Int returned %v outside [10, 20]", v)
		}
	}
	for i := 0; i < 50; i++ {
		if b := src.Bit(); b > 1 {
			t.Fatalf("Bit returned %d", b)
		}
	}
}

func TestSourceDeterministicForClock(t *testing.T) {
	newSrc := func() *Source {
		var clock int64 = 42
		return NewSourceWithClock(func() int64 {
			clock += 3
			return clock
		})
	}
	a, b := newSrc(), newSrc()
	for i := 0; i < 20; i++ {
		x := a.Int(big.NewInt(0), big.NewInt(1000))
		y := b.Int(big.NewInt(0), big.NewInt(1000))
		if x.Cmp(y) != 0 {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}
