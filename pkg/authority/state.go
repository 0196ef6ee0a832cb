// Package authority implements the three roles of the hierarchy: the Root
// CA, intermediate CAs and clients. Each role owns a State holding its key
// pair and the certificate issued for it.
package authority

import (
	"sync"
	"time"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/keygen"
	"github.com/fancl20/trustchain/pkg/sig"
)

var (
	// ErrKeyStateMissing is returned when an operation needs keys or a
	// certificate that have not been generated or obtained yet.
	ErrKeyStateMissing = serrors.New("key state missing")
	// ErrUpstreamUnavailable is returned when an upstream authority or peer
	// cannot be reached.
	ErrUpstreamUnavailable = serrors.New("upstream unavailable")
	// ErrUnknownPeer is returned when a message is addressed to a peer that
	// is not in the directory.
	ErrUnknownPeer = serrors.New("unknown peer")
	// ErrInvalidPeer is returned when a peer entry cannot be added to a
	// directory.
	ErrInvalidPeer = serrors.New("invalid peer")
)

// State is the key pair slot and own-certificate slot of one node.
type State struct {
	gen  *keygen.Generator
	bits int

	mu   sync.RWMutex
	keys *keygen.KeyPair
	cert cert.Variant
}

// NewState returns an empty State generating bits-long primes with gen.
func NewState(gen *keygen.Generator, bits int) *State {
	if gen == nil {
		gen = keygen.NewGenerator()
	}
	if bits == 0 {
		bits = keygen.DefaultBits
	}
	return &State{gen: gen, bits: bits}
}

// GenerateKeys replaces the key pair. The prime search runs without holding
// the lock. The own certificate is dropped since it no longer matches.
func (s *State) GenerateKeys() (sig.PublicKey, error) {
	kp, err := s.gen.Generate(s.bits)
	if err != nil {
		return sig.PublicKey{}, serrors.Wrap("generating key pair", err, "bits", s.bits)
	}
	s.mu.Lock()
	s.keys = &kp
	s.cert = nil
	s.mu.Unlock()
	return kp.PublicKey(), nil
}

// PublicKey returns the current public key.
func (s *State) PublicKey() (sig.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return sig.PublicKey{}, serrors.Wrap("keys not generated", ErrKeyStateMissing)
	}
	return s.keys.PublicKey(), nil
}

// Issue runs fn with the current key material acting as issuer name. The
// read lock is held for the duration of fn.
func (s *State) Issue(name string, fn func(cert.Issuer) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return serrors.Wrap("keys not generated", ErrKeyStateMissing)
	}
	return fn(cert.Issuer{Name: name, PublicKey: s.keys.PublicKey(), PrivateKey: s.keys.D})
}

// Install records v as the node's own certificate. It fails if the keys
// were regenerated after v was issued for key.
func (s *State) Install(key sig.PublicKey, v cert.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		return serrors.Wrap("keys not generated", ErrKeyStateMissing)
	}
	if !s.keys.PublicKey().Equal(key) {
		return serrors.Wrap("keys changed while the certificate was issued", ErrKeyStateMissing)
	}
	s.cert = v
	return nil
}

// Certificate returns the node's own certificate.
func (s *State) Certificate() (cert.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cert == nil {
		return nil, serrors.Wrap("certificate not issued", ErrKeyStateMissing)
	}
	return s.cert, nil
}

func nowFunc(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
