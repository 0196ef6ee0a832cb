// Package sig implements the signature scheme shared by every party of the
// trust hierarchy: a keyed hash of the canonical data string raised to the
// private exponent.
package sig

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/scionproto/scion/pkg/private/serrors"
)

// PublicKey is the pair (e, n). On the wire it is the array [e, n].
type PublicKey struct {
	E *big.Int
	N *big.Int
}

// Valid reports whether both components are set and n is positive.
func (k PublicKey) Valid() bool {
	return k.E != nil && k.N != nil && k.N.Sign() > 0
}

// Equal reports whether k and o hold the same components.
func (k PublicKey) Equal(o PublicKey) bool {
	if !k.Valid() || !o.Valid() {
		return false
	}
	return k.E.Cmp(o.E) == 0 && k.N.Cmp(o.N) == 0
}

func (k PublicKey) String() string {
	return fmt.Sprintf("[%v, %v]", k.E, k.N)
}

// MarshalJSON encodes the key as [e, n].
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal([]*big.Int{k.E, k.N})
}

// UnmarshalJSON accepts exactly two integers.
func (k *PublicKey) UnmarshalJSON(b []byte) error {
	var parts []*big.Int
	if err := json.Unmarshal(b, &parts); err != nil {
		return serrors.Wrap("public key must be an integer array", err)
	}
	if len(parts) != 2 || parts[0] == nil || parts[1] == nil {
		return serrors.New("public key must hold exactly two integers", "len", len(parts))
	}
	k.E, k.N = parts[0], parts[1]
	return nil
}

// Signature is the pair {r, s}. R is the digest the signer computed and is
// carried for inspection only; verification recomputes it.
type Signature struct {
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// UnmarshalJSON requires both r and s.
func (s *Signature) UnmarshalJSON(b []byte) error {
	type wire Signature
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return serrors.Wrap("signature must be an object", err)
	}
	if w.R == nil || w.S == nil {
		return serrors.New("signature must carry integer r and s")
	}
	*s = Signature(w)
	return nil
}

// DataString returns the canonical signed payload "subject|e|n|timestamp".
func DataString(subject string, key PublicKey, timestamp int64) string {
	return fmt.Sprintf("%s|%v|%v|%d", subject, key.E, key.N, timestamp)
}

// Sign returns {r, s} with r = Hash(data, n) and s = r^d mod n.
func Sign(data string, n, d *big.Int) Signature {
	r := Hash(data, n)
	s := new(big.Int).Exp(r, d, n)
	return Signature{R: r, S: s}
}

// Verify reports whether s^e mod n equals Hash(data, n). The r carried by the
// signature is ignored.
func Verify(data string, signature Signature, e, n *big.Int) bool {
	if signature.S == nil || e == nil || n == nil || n.Sign() <= 0 {
		return false
	}
	expected := Hash(data, n)
	s := new(big.Int).Mod(signature.S, n)
	return new(big.Int).Exp(s, e, n).Cmp(expected) == 0
}

// VerifyKey is Verify with the public key as a value.
func VerifyKey(data string, signature Signature, key PublicKey) bool {
	if !key.Valid() {
		return false
	}
	return Verify(data, signature, key.E, key.N)
}
