package chain

import (
	"errors"
	"math/big"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/sig"
)

// Verdicts reported to the sender of a message.
const (
	CheckValid               = "signature valid"
	CheckMessageInvalid      = "message signature invalid"
	CheckIntermediateInvalid = "intermediate certificate signature invalid"
	CheckRootInvalid         = "root certificate signature invalid"
	CheckClientInvalid       = "client certificate invalid"
	CheckMalformed           = "malformed message"
)

// SignedMessage is an application message together with the chain that
// vouches for its sender.
type SignedMessage struct {
	Subject   string        `json:"subject"`
	Message   string        `json:"message"`
	Signature sig.Signature `json:"signature"`
	Timestamp int64         `json:"timestamp"`
	// PublicKeys is the sender's (e, n).
	PublicKeys   sig.PublicKey                `json:"public_keys"`
	Certificate  cert.Certificate             `json:"certificate"`
	RootCA       cert.RootCertificate         `json:"root_ca"`
	Intermediate cert.IntermediateCertificate `json:"ca_ca"`
}

// DataString is the string the sender signs: the message text in the
// subject slot.
func (m *SignedMessage) DataString() string {
	return sig.DataString(m.Message, m.PublicKeys, m.Timestamp)
}

// Sign composes a message from subject signed with the client's key.
func Sign(
	client *cert.ClientCertificate,
	intermediate *cert.IntermediateCertificate,
	root *cert.RootCertificate,
	subject, message string,
	timestamp int64,
) *SignedMessage {
	m := &SignedMessage{
		Subject:      subject,
		Message:      message,
		Timestamp:    timestamp,
		PublicKeys:   client.PublicKey,
		Certificate:  *client.Certificate.Clone(),
		RootCA:       cert.RootCertificate{Certificate: *root.Clone()},
		Intermediate: cert.IntermediateCertificate{Certificate: *intermediate.Clone()},
	}
	m.Signature = sig.Sign(m.DataString(), client.PublicKey.N, client.PrivateKey)
	return m
}

// Override replaces the signature with the given pair. It reproduces a
// forged message for demonstration. Both values must be set.
func (m *SignedMessage) Override(r, s *big.Int) {
	if r == nil || s == nil {
		return
	}
	m.Signature = sig.Signature{R: new(big.Int).Set(r), S: new(big.Int).Set(s)}
}

// ValidateMessage verifies the message signature under the embedded sender
// key and then the embedded chain. The chain is not consulted when the
// message signature fails.
func ValidateMessage(m *SignedMessage) error {
	if m == nil {
		return &Error{Hop: HopMessage, Err: serrors.Wrap("missing message", cert.ErrMalformed)}
	}
	if m.Subject == "" {
		return &Error{Hop: HopMessage, Err: serrors.Wrap("must be a non-empty string", cert.ErrMalformed, "field", "subject")}
	}
	if m.Timestamp <= 0 {
		return &Error{Hop: HopMessage, Err: serrors.Wrap("must be a positive integer", cert.ErrMalformed, "field", "timestamp")}
	}
	if !m.PublicKeys.Valid() {
		return &Error{Hop: HopMessage, Err: serrors.Wrap("must be two integers with a positive modulus", cert.ErrMalformed, "field", "public_keys")}
	}
	if !sig.VerifyKey(m.DataString(), m.Signature, m.PublicKeys) {
		return &Error{Hop: HopMessage, Err: ErrSignatureInvalid}
	}

	leaf := &cert.LeafCertificate{Certificate: m.Certificate, ExpectedSubject: m.Subject}
	if err := leaf.Validate(); err != nil {
		return &Error{Hop: HopClient, Err: err}
	}
	if !m.PublicKeys.Equal(*leaf.PublicKeyC) {
		return &Error{Hop: HopClient, Err: serrors.Wrap("message key differs from certified key", ErrKeyMismatch)}
	}
	return ValidateChain(leaf, &m.Intermediate, &m.RootCA)
}

// Check maps a ValidateMessage result to the verdict reported to the sender.
func Check(err error) string {
	if err == nil {
		return CheckValid
	}
	var e *Error
	if !errors.As(err, &e) {
		return CheckMalformed
	}
	switch e.Hop {
	case HopMessage:
		if errors.Is(err, ErrSignatureInvalid) {
			return CheckMessageInvalid
		}
		return CheckMalformed
	case HopIntermediate:
		return CheckIntermediateInvalid
	case HopRoot:
		return CheckRootInvalid
	default:
		return CheckClientInvalid
	}
}
