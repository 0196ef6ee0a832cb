package authority

import (
	"context"
	"time"

	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/sig"
	"github.com/fancl20/trustchain/pkg/store"
)

// Root is the Root CA service.
type Root struct {
	state *State
	store store.Store
	now   func() time.Time
}

// NewRoot creates a Root using state for its keys and st for issued
// certificates. now defaults to time.Now.
func NewRoot(state *State, st store.Store, now func() time.Time) *Root {
	return &Root{state: state, store: st, now: nowFunc(now)}
}

// GenerateKeys replaces the Root key pair.
func (r *Root) GenerateKeys(ctx context.Context) (sig.PublicKey, error) {
	pk, err := r.state.GenerateKeys()
	if err != nil {
		return sig.PublicKey{}, err
	}
	log.FromCtx(ctx).Info("Generated root key pair", "public_key", pk)
	return pk, nil
}

// IssueRootCertificate self-signs a certificate for the current key pair
// and stores it under the root role.
func (r *Root) IssueRootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	var root *cert.RootCertificate
	if err := r.state.Issue(cert.RootSubject, func(is cert.Issuer) error {
		root = is.SelfSign(r.now().Unix())
		return nil
	}); err != nil {
		return nil, serrors.Wrap("issuing root certificate", err)
	}
	if err := r.state.Install(root.PublicKey, root); err != nil {
		return nil, err
	}
	if err := store.SaveJSON(ctx, r.store, store.RoleRoot, root); err != nil {
		return nil, serrors.Wrap("saving root certificate", err)
	}
	log.FromCtx(ctx).Info("Issued root certificate",
		"subject", root.Subject, "public_key", root.PublicKey, "timestamp", root.Timestamp)
	return root, nil
}

// RootCertificate returns the issued root certificate.
func (r *Root) RootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	v, err := r.state.Certificate()
	if err != nil {
		return nil, serrors.Wrap("root certificate not issued", err)
	}
	return v.(*cert.RootCertificate), nil
}

// SignIntermediate certifies the key of an intermediate. The certificate is
// stored under the signed role of its subject.
func (r *Root) SignIntermediate(ctx context.Context, req SigningRequest) (*cert.IntermediateCertificate, error) {
	root, err := r.RootCertificate(ctx)
	if err != nil {
		return nil, err
	}
	var ica *cert.IntermediateCertificate
	if err := r.state.Issue(root.Subject, func(is cert.Issuer) error {
		if !is.PublicKey.Equal(root.PublicKey) {
			return serrors.Wrap("root certificate does not match the current keys", ErrKeyStateMissing)
		}
		ica = is.IssueIntermediate(req.Subject, req.PublicKey, req.Timestamp)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := ica.Validate(); err != nil {
		return nil, serrors.Wrap("rejecting signing request", err, "subject", req.Subject)
	}
	if err := store.SaveJSON(ctx, r.store, store.SignedRole(req.Subject), ica); err != nil {
		return nil, serrors.Wrap("saving intermediate certificate", err)
	}
	log.FromCtx(ctx).Info("Signed intermediate certificate",
		"subject", ica.Subject, "public_key", ica.PublicKey, "timestamp", ica.Timestamp)
	return ica, nil
}

// SignedIntermediates lists the subjects this Root has certified.
func (r *Root) SignedIntermediates(ctx context.Context) ([]string, error) {
	roles, err := r.store.List(ctx)
	if err != nil {
		return nil, serrors.Wrap("listing certificates", err)
	}
	var subjects []string
	for _, role := range roles {
		if s, ok := role.SignedSubject(); ok {
			subjects = append(subjects, s)
		}
	}
	return subjects, nil
}
