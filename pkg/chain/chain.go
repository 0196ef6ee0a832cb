// Package chain walks a client → intermediate → root certificate chain and
// verifies signed application messages that carry such a chain.
package chain

import (
	"fmt"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/sig"
)

var (
	// ErrSignatureInvalid indicates a signature that does not verify at the
	// reported hop.
	ErrSignatureInvalid = serrors.New("signature invalid")
	// ErrKeyMismatch indicates a message signed with a key other than the
	// one its certificate vouches for.
	ErrKeyMismatch = serrors.New("key mismatch")
)

// Hop names the link of the chain a check failed at.
type Hop string

const (
	HopMessage      Hop = "message"
	HopClient       Hop = "client"
	HopIntermediate Hop = "intermediate"
	HopRoot         Hop = "root"
)

// Error is returned by every validation failure.
type Error struct {
	Hop Hop
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Hop, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidateChain runs the structural checks of all three certificates and
// then verifies, in order, the client certificate under the intermediate's
// key, the intermediate certificate under the root key and the root
// self-signature. It stops at the first failure. A nil certificate is
// reported as malformed at its hop.
func ValidateChain(
	client *cert.LeafCertificate,
	intermediate *cert.IntermediateCertificate,
	root *cert.RootCertificate,
) error {
	for _, c := range []struct {
		hop     Hop
		missing bool
		v       cert.Variant
	}{
		{HopClient, client == nil, client},
		{HopIntermediate, intermediate == nil, intermediate},
		{HopRoot, root == nil, root},
	} {
		if c.missing {
			return &Error{Hop: c.hop, Err: serrors.Wrap("missing certificate", cert.ErrMalformed)}
		}
		if err := c.v.Validate(); err != nil {
			return &Error{Hop: c.hop, Err: err}
		}
	}

	if !sig.VerifyKey(client.DataString(), client.Signature, intermediate.PublicKey) {
		return &Error{Hop: HopClient, Err: ErrSignatureInvalid}
	}
	if !sig.VerifyKey(intermediate.DataString(), intermediate.Signature, root.PublicKey) {
		return &Error{Hop: HopIntermediate, Err: ErrSignatureInvalid}
	}
	if !sig.VerifyKey(root.DataString(), root.Signature, root.PublicKey) {
		return &Error{Hop: HopRoot, Err: ErrSignatureInvalid}
	}
	return nil
}

// ValidateClientCertificate checks a client's bundle, including its own key
// material, and the chain it belongs to.
func ValidateClientCertificate(
	client *cert.ClientCertificate,
	intermediate *cert.IntermediateCertificate,
	root *cert.RootCertificate,
) error {
	if client == nil {
		return &Error{Hop: HopClient, Err: serrors.Wrap("missing client certificate", cert.ErrMalformed)}
	}
	if err := client.Validate(); err != nil {
		return &Error{Hop: HopClient, Err: err}
	}
	if !client.PublicKey.Equal(*client.Certificate.PublicKeyC) {
		return &Error{Hop: HopClient, Err: serrors.Wrap("bundle key differs from certified key", ErrKeyMismatch)}
	}
	return ValidateChain(client.Leaf(), intermediate, root)
}
