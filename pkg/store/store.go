// Package store defines the persistence collaborator used by the
// authorities: certificate blobs in their JSON wire form, keyed by role.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/scionproto/scion/pkg/private/serrors"
)

// ErrNotFound is returned by Load when nothing is stored under the role.
var ErrNotFound = serrors.New("not found")

// Role identifies a stored certificate.
type Role string

const (
	// RoleRoot holds the root certificate.
	RoleRoot Role = "root"
	// RoleIntermediate holds a node's own intermediate certificate.
	RoleIntermediate Role = "ica"
	// RoleClient holds a client's certificate bundle.
	RoleClient Role = "client"
)

const signedPrefix = "ica/"

// SignedRole is the role under which a Root keeps the certificate it
// issued to subject.
func SignedRole(subject string) Role {
	return Role(signedPrefix + subject)
}

// SignedSubject returns the subject of a role built by SignedRole.
func (r Role) SignedSubject() (string, bool) {
	return strings.CutPrefix(string(r), signedPrefix)
}

// Store is the persistence interface for certificate blobs.
type Store interface {
	// Load returns the blob stored under role or ErrNotFound.
	Load(ctx context.Context, role Role) ([]byte, error)
	// Save stores blob under role, replacing any previous value.
	Save(ctx context.Context, role Role, blob []byte) error
	// List returns all stored roles in ascending order.
	List(ctx context.Context) ([]Role, error)

	Close() error
}

// LoadJSON loads role and decodes it into v.
func LoadJSON(ctx context.Context, s Store, role Role, v any) error {
	b, err := s.Load(ctx, role)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return serrors.Wrap("decoding stored blob", err, "role", role)
	}
	return nil
}

// SaveJSON encodes v and stores it under role.
func SaveJSON(ctx context.Context, s Store, role Role, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return serrors.Wrap("encoding blob", err, "role", role)
	}
	return s.Save(ctx, role, b)
}

// IsNotFound reports whether err is a store miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
