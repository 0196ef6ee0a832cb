// Package cert defines the certificates of the three-tier hierarchy and
// their shape checks.
//
// A certificate's variant is fixed by the Go type it is decoded into
// (RootCertificate, IntermediateCertificate, LeafCertificate) rather than
// guessed from its subject. The subject conventions of existing payloads
// ("Root CA", "...Intermediate...") are still enforced when validating.
package cert

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/sig"
)

const (
	// RootSubject is the subject and issuer of every root certificate.
	RootSubject = "Root CA"
	// IntermediateMarker must appear in the subject of an intermediate.
	IntermediateMarker = "Intermediate"
)

var (
	// ErrMalformed indicates a missing or mistyped certificate field.
	ErrMalformed = serrors.New("malformed certificate")
	// ErrSubjectMismatch indicates a subject that does not match the
	// expected identity.
	ErrSubjectMismatch = serrors.New("subject mismatch")
)

// Kind identifies the certificate variant.
type Kind int

const (
	KindUnknown Kind = iota
	// KindRoot is the self-issued certificate of the Root CA.
	KindRoot
	// KindIntermediate is a certificate the Root issued to an intermediate.
	KindIntermediate
	// KindClient is a certificate an intermediate issued to a client.
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindIntermediate:
		return "intermediate"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Variant is implemented by every certificate variant.
type Variant interface {
	Kind() Kind
	// Base returns the common certificate fields.
	Base() *Certificate
	// Validate runs the field-level and variant-specific shape checks.
	Validate() error
}

// Certificate holds the fields shared by all variants.
type Certificate struct {
	Subject   string        `json:"subject"`
	Issuer    string        `json:"issuer"`
	PublicKey sig.PublicKey `json:"public_key"`
	// PublicKeyC is the subject's own key for intermediate and client
	// certificates. Root certificates never carry it.
	PublicKeyC *sig.PublicKey `json:"public_key_c,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	Signature  sig.Signature  `json:"signature"`
}

// UnmarshalJSON decodes the wire form. Missing or mistyped fields are
// reported as ErrMalformed naming the field.
func (c *Certificate) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return serrors.Wrap("certificate must be a JSON object", ErrMalformed, "cause", err)
	}
	var out Certificate
	required := []struct {
		name string
		dst  any
	}{
		{"subject", &out.Subject},
		{"issuer", &out.Issuer},
		{"public_key", &out.PublicKey},
		{"timestamp", &out.Timestamp},
		{"signature", &out.Signature},
	}
	for _, f := range required {
		raw, ok := fields[f.name]
		if !ok || isNull(raw) {
			return malformed(f.name, "missing field")
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return serrors.Wrap("invalid field", ErrMalformed, "field", f.name, "cause", err)
		}
	}
	if raw, ok := fields["public_key_c"]; ok && !isNull(raw) {
		var k sig.PublicKey
		if err := json.Unmarshal(raw, &k); err != nil {
			return serrors.Wrap("invalid field", ErrMalformed, "field", "public_key_c", "cause", err)
		}
		out.PublicKeyC = &k
	}
	*c = out
	return nil
}

// Validate runs the checks every variant shares.
func (c *Certificate) Validate() error {
	if c.Subject == "" {
		return malformed("subject", "must be a non-empty string")
	}
	if c.Issuer == "" {
		return malformed("issuer", "must be a non-empty string")
	}
	if !c.PublicKey.Valid() {
		return malformed("public_key", "must be two integers with a positive modulus")
	}
	if c.Timestamp <= 0 {
		return malformed("timestamp", "must be a positive integer")
	}
	if c.Signature.R == nil || c.Signature.S == nil {
		return malformed("signature", "must carry integer r and s")
	}
	return nil
}

// DataString returns the canonical string signed over the subject's key.
// It uses PublicKeyC when present: for intermediate and client certificates
// that is the key the certificate vouches for.
func (c *Certificate) DataString() string {
	return sig.DataString(c.Subject, c.SubjectKey(), c.Timestamp)
}

// SubjectKey returns the key the certificate binds to its subject.
func (c *Certificate) SubjectKey() sig.PublicKey {
	if c.PublicKeyC != nil {
		return *c.PublicKeyC
	}
	return c.PublicKey
}

// Clone returns a deep copy of c.
func (c *Certificate) Clone() *Certificate {
	out := *c
	out.PublicKey = cloneKey(c.PublicKey)
	if c.PublicKeyC != nil {
		k := cloneKey(*c.PublicKeyC)
		out.PublicKeyC = &k
	}
	out.Signature = sig.Signature{R: cloneInt(c.Signature.R), S: cloneInt(c.Signature.S)}
	return &out
}

// RootCertificate is the self-signed certificate of the Root CA.
type RootCertificate struct {
	Certificate
}

func (*RootCertificate) Kind() Kind { return KindRoot }
func (r *RootCertificate) Base() *Certificate { return &r.Certificate }

// Validate checks the shared fields, the absence of public_key_c and the
// "Root CA" subject.
func (r *RootCertificate) Validate() error {
	if err := r.Certificate.Validate(); err != nil {
		return err
	}
	if r.PublicKeyC != nil {
		return malformed("public_key_c", "root certificate must not carry it")
	}
	if r.Subject != RootSubject {
		return subjectMismatch(RootSubject, r.Subject)
	}
	return nil
}

// IntermediateCertificate is issued by the Root to an intermediate
// authority.
type IntermediateCertificate struct {
	Certificate
}

func (*IntermediateCertificate) Kind() Kind { return KindIntermediate }
func (i *IntermediateCertificate) Base() *Certificate { return &i.Certificate }

// Validate checks the shared fields, public_key_c and that the subject names
// an intermediate authority.
func (i *IntermediateCertificate) Validate() error {
	if err := i.Certificate.Validate(); err != nil {
		return err
	}
	if i.PublicKeyC == nil || !i.PublicKeyC.Valid() {
		return malformed("public_key_c", "must be two integers with a positive modulus")
	}
	if !strings.Contains(i.Subject, IntermediateMarker) {
		return serrors.Wrap("subject does not name an intermediate authority", ErrSubjectMismatch,
			"expected", "*"+IntermediateMarker+"*", "actual", i.Subject)
	}
	return nil
}

// LeafCertificate is the certificate an intermediate issued to a client,
// paired with the identity the caller expects it to name.
type LeafCertificate struct {
	Certificate
	ExpectedSubject string `json:"-"`
}

func (*LeafCertificate) Kind() Kind { return KindClient }
func (l *LeafCertificate) Base() *Certificate { return &l.Certificate }

// Validate checks the shared fields, public_key_c and the expected subject.
func (l *LeafCertificate) Validate() error {
	if err := l.Certificate.Validate(); err != nil {
		return err
	}
	if l.PublicKeyC == nil || !l.PublicKeyC.Valid() {
		return malformed("public_key_c", "must be two integers with a positive modulus")
	}
	if l.Subject != l.ExpectedSubject {
		return subjectMismatch(l.ExpectedSubject, l.Subject)
	}
	return nil
}

// ClientCertificate is what an intermediate hands to an enrolling client:
// the client's own key material plus the issued certificate.
type ClientCertificate struct {
	// PublicKey is the client's own (e, n).
	PublicKey sig.PublicKey `json:"public_key"`
	// PrivateKey is the client's private exponent d.
	PrivateKey *big.Int `json:"private_key"`
	// Certificate is signed by the intermediate; its PublicKey is the
	// intermediate's key and its PublicKeyC the client's.
	Certificate Certificate `json:"certificate"`

	expectedSubject string
}

// Expect sets the identity the embedded certificate must name.
func (c *ClientCertificate) Expect(subject string) *ClientCertificate {
	c.expectedSubject = subject
	return c
}

// Leaf returns the embedded certificate as a LeafCertificate bound to the
// expected subject.
func (c *ClientCertificate) Leaf() *LeafCertificate {
	return &LeafCertificate{Certificate: c.Certificate, ExpectedSubject: c.expectedSubject}
}

func (*ClientCertificate) Kind() Kind { return KindClient }
func (c *ClientCertificate) Base() *Certificate { return &c.Certificate }

// Validate checks the top-level key material and the embedded certificate.
func (c *ClientCertificate) Validate() error {
	if !c.PublicKey.Valid() {
		return malformed("public_key", "top-level key must be two integers with a positive modulus")
	}
	if c.PrivateKey == nil {
		return malformed("private_key", "must be an integer")
	}
	return c.Leaf().Validate()
}

// UnmarshalJSON requires the certificate object and reports missing
// top-level fields as ErrMalformed.
func (c *ClientCertificate) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return serrors.Wrap("client certificate must be a JSON object", ErrMalformed, "cause", err)
	}
	raw, ok := fields["certificate"]
	if !ok || isNull(raw) {
		return malformed("certificate", "missing field")
	}
	var out ClientCertificate
	if err := json.Unmarshal(raw, &out.Certificate); err != nil {
		return err
	}
	if raw, ok := fields["public_key"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.PublicKey); err != nil {
			return serrors.Wrap("invalid field", ErrMalformed, "field", "public_key", "cause", err)
		}
	}
	if raw, ok := fields["private_key"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.PrivateKey); err != nil {
			return serrors.Wrap("invalid field", ErrMalformed, "field", "private_key", "cause", err)
		}
	}
	out.expectedSubject = c.expectedSubject
	*c = out
	return nil
}

// ParseRoot decodes and validates a root certificate.
func ParseRoot(b []byte) (*RootCertificate, error) {
	var r RootCertificate
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, asMalformed(err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseIntermediate decodes and validates an intermediate certificate.
func ParseIntermediate(b []byte) (*IntermediateCertificate, error) {
	var i IntermediateCertificate
	if err := json.Unmarshal(b, &i); err != nil {
		return nil, asMalformed(err)
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return &i, nil
}

// ParseClient decodes and validates a client certificate bundle issued to
// expectedSubject.
func ParseClient(b []byte, expectedSubject string) (*ClientCertificate, error) {
	c := (&ClientCertificate{}).Expect(expectedSubject)
	if err := json.Unmarshal(b, c); err != nil {
		return nil, asMalformed(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func malformed(field, reason string) error {
	return serrors.Wrap(reason, ErrMalformed, "field", field)
}

func subjectMismatch(expected, actual string) error {
	return serrors.Wrap("unexpected subject", ErrSubjectMismatch,
		"expected", expected, "actual", actual)
}

// asMalformed tags decoding errors that did not come from our own checks,
// such as a top-level type mismatch.
func asMalformed(err error) error {
	if errors.Is(err, ErrMalformed) {
		return err
	}
	return serrors.Wrap("decoding certificate", ErrMalformed, "cause", err)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneKey(k sig.PublicKey) sig.PublicKey {
	return sig.PublicKey{E: cloneInt(k.E), N: cloneInt(k.N)}
}
