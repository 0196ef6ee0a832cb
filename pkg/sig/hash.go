package sig

import "math/big"

const (
	hashSeed       = 5381
	hashMultiplier = 0x9E3779B9
)

var (
	hashSeedInt = big.NewInt(hashSeed)
	thirtyThree = big.NewInt(33)
	goldenRatio = big.NewInt(hashMultiplier)
)

// Hash maps data to an integer in [0, n). Starting from 5381, every code
// point c updates the state to ((h*33 + c) XOR (h >> 8)) * 0x9E3779B9 mod n.
// The result is order-sensitive and stable across processes. It is not a
// cryptographic digest.
//
// Hash panics if n is not positive.
func Hash(data string, n *big.Int) *big.Int {
	if n == nil || n.Sign() <= 0 {
		panic("sig: hash modulus must be positive")
	}
	h := new(big.Int).Set(hashSeedInt)
	mixed, shifted := new(big.Int), new(big.Int)
	for _, c := range data {
		mixed.Mul(h, thirtyThree)
		mixed.Add(mixed, big.NewInt(int64(c)))
		shifted.Rsh(h, 8)
		h.Xor(mixed, shifted)
		h.Mul(h, goldenRatio)
		h.Mod(h, n)
	}
	return h.Mod(h, n)
}
