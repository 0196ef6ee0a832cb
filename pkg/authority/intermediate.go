package authority

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"
	"golang.org/x/sync/singleflight"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/keygen"
	"github.com/fancl20/trustchain/pkg/sig"
	"github.com/fancl20/trustchain/pkg/store"
)

const (
	// DefaultIntermediateSubject is the subject an intermediate requests
	// when none is configured.
	DefaultIntermediateSubject = "Intermediate CA2"
	// DefaultRootCacheTTL is how long a fetched root certificate is reused.
	DefaultRootCacheTTL = 5 * time.Minute

	rootCacheKey = "root"
)

// IntermediateConfig configures an Intermediate.
type IntermediateConfig struct {
	Subject string
	State   *State
	Store   store.Store
	Root    RootUpstream
	// ClientKeys generates client key pairs. Defaults to a fresh generator
	// with keygen.DefaultBits.
	ClientKeys *keygen.Generator
	ClientBits int
	// RootCacheTTL bounds how long the upstream root certificate is reused.
	RootCacheTTL time.Duration
	Now          func() time.Time
}

// Intermediate is an intermediate CA service.
type Intermediate struct {
	subject    string
	state      *State
	store      store.Store
	root       RootUpstream
	clientKeys *keygen.Generator
	clientBits int
	now        func() time.Time

	rootCache *cache.Cache
	fetches   singleflight.Group
}

// NewIntermediate creates an Intermediate from cfg.
func NewIntermediate(cfg IntermediateConfig) *Intermediate {
	if cfg.Subject == "" {
		cfg.Subject = DefaultIntermediateSubject
	}
	if cfg.ClientKeys == nil {
		cfg.ClientKeys = keygen.NewGenerator()
	}
	if cfg.ClientBits == 0 {
		cfg.ClientBits = keygen.DefaultBits
	}
	if cfg.RootCacheTTL == 0 {
		cfg.RootCacheTTL = DefaultRootCacheTTL
	}
	return &Intermediate{
		subject:    cfg.Subject,
		state:      cfg.State,
		store:      cfg.Store,
		root:       cfg.Root,
		clientKeys: cfg.ClientKeys,
		clientBits: cfg.ClientBits,
		now:        nowFunc(cfg.Now),
		rootCache:  cache.New(cfg.RootCacheTTL, 2*cfg.RootCacheTTL),
	}
}

// Subject returns the subject this intermediate is certified for.
func (i *Intermediate) Subject() string {
	return i.subject
}

// GenerateKeys replaces the intermediate key pair.
func (i *Intermediate) GenerateKeys(ctx context.Context) (sig.PublicKey, error) {
	pk, err := i.state.GenerateKeys()
	if err != nil {
		return sig.PublicKey{}, err
	}
	log.FromCtx(ctx).Info("Generated intermediate key pair", "subject", i.subject, "public_key", pk)
	return pk, nil
}

// FetchRootCertificate obtains the root certificate from the Root, checks
// its shape and self-signature and stores it under the root role. It always
// asks the Root and refreshes the cached copy. Concurrent callers share one
// upstream request.
func (i *Intermediate) FetchRootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	v, err, _ := i.fetches.Do(rootCacheKey, func() (any, error) {
		root, err := i.root.RootCertificate(ctx)
		if err != nil {
			return nil, serrors.Wrap("fetching root certificate", err)
		}
		if err := verifyRoot(root); err != nil {
			return nil, err
		}
		if err := store.SaveJSON(ctx, i.store, store.RoleRoot, root); err != nil {
			return nil, serrors.Wrap("saving root certificate", err)
		}
		i.rootCache.SetDefault(rootCacheKey, root)
		log.FromCtx(ctx).Info("Fetched root certificate", "subject", root.Subject,
			"public_key", root.PublicKey, "timestamp", root.Timestamp)
		return root, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cert.RootCertificate), nil
}

// cachedRoot returns the cached root certificate, fetching it on a miss.
func (i *Intermediate) cachedRoot(ctx context.Context) (*cert.RootCertificate, bool, error) {
	if v, ok := i.rootCache.Get(rootCacheKey); ok {
		return v.(*cert.RootCertificate), true, nil
	}
	root, err := i.FetchRootCertificate(ctx)
	return root, false, err
}

// RequestCertificate asks the Root to certify the current key and stores
// the verified result under the intermediate role. A certificate that does
// not verify under a cached root triggers one refetch of the root.
func (i *Intermediate) RequestCertificate(ctx context.Context) (*cert.IntermediateCertificate, error) {
	pk, err := i.state.PublicKey()
	if err != nil {
		return nil, err
	}
	root, cached, err := i.cachedRoot(ctx)
	if err != nil {
		return nil, err
	}
	req := SigningRequest{Subject: i.subject, PublicKey: pk, Timestamp: i.now().Unix()}
	ica, err := i.root.SignIntermediate(ctx, req)
	if err != nil {
		return nil, serrors.Wrap("requesting intermediate certificate", err, "subject", i.subject)
	}
	if err := ica.Validate(); err != nil {
		return nil, serrors.Wrap("root returned an invalid certificate", err)
	}
	if !ica.PublicKeyC.Equal(pk) || ica.Subject != i.subject {
		return nil, serrors.Wrap("root certified a different identity", chain.ErrKeyMismatch,
			"subject", ica.Subject)
	}
	if !sig.VerifyKey(ica.DataString(), ica.Signature, root.PublicKey) && cached {
		log.FromCtx(ctx).Info("Cached root certificate is stale, refetching",
			"public_key", root.PublicKey)
		i.rootCache.Delete(rootCacheKey)
		if root, err = i.FetchRootCertificate(ctx); err != nil {
			return nil, err
		}
	}
	if !sig.VerifyKey(ica.DataString(), ica.Signature, root.PublicKey) {
		return nil, &chain.Error{Hop: chain.HopIntermediate, Err: chain.ErrSignatureInvalid}
	}
	if err := i.state.Install(pk, ica); err != nil {
		return nil, err
	}
	if err := store.SaveJSON(ctx, i.store, store.RoleIntermediate, ica); err != nil {
		return nil, serrors.Wrap("saving intermediate certificate", err)
	}
	log.FromCtx(ctx).Info("Obtained intermediate certificate", "subject", ica.Subject, "timestamp", ica.Timestamp)
	return ica, nil
}

// Certificates returns the stored root and intermediate certificates.
func (i *Intermediate) Certificates(ctx context.Context) (*AuthorityCertificates, error) {
	var out AuthorityCertificates
	if err := store.LoadJSON(ctx, i.store, store.RoleRoot, &out.Root); err != nil {
		return nil, serrors.Wrap("loading root certificate", err)
	}
	if err := store.LoadJSON(ctx, i.store, store.RoleIntermediate, &out.Intermediate); err != nil {
		return nil, serrors.Wrap("loading intermediate certificate", err)
	}
	return &out, nil
}

// IssueClientCertificate generates a fresh key pair for subject and
// certifies it with the intermediate key.
func (i *Intermediate) IssueClientCertificate(ctx context.Context, subject string) (*cert.ClientCertificate, error) {
	if subject == "" {
		return nil, serrors.Wrap("client subject must be a non-empty string", cert.ErrMalformed, "field", "subject")
	}
	own, err := i.state.Certificate()
	if err != nil {
		return nil, serrors.Wrap("intermediate certificate not obtained", err)
	}
	kp, err := i.clientKeys.Generate(i.clientBits)
	if err != nil {
		return nil, serrors.Wrap("generating client key pair", err, "subject", subject)
	}
	var cc *cert.ClientCertificate
	if err := i.state.Issue(own.Base().Subject, func(is cert.Issuer) error {
		if !is.PublicKey.Equal(*own.Base().PublicKeyC) {
			return serrors.Wrap("intermediate certificate does not match the current keys", ErrKeyStateMissing)
		}
		cc = is.IssueClient(subject, kp.PublicKey(), kp.D, i.now().Unix())
		return nil
	}); err != nil {
		return nil, err
	}
	log.FromCtx(ctx).Info("Issued client certificate", "subject", subject, "public_key", cc.PublicKey)
	return cc, nil
}

func verifyRoot(root *cert.RootCertificate) error {
	if root == nil {
		return serrors.Wrap("empty root certificate", cert.ErrMalformed)
	}
	if err := root.Validate(); err != nil {
		return &chain.Error{Hop: chain.HopRoot, Err: err}
	}
	if !sig.VerifyKey(root.DataString(), root.Signature, root.PublicKey) {
		return &chain.Error{Hop: chain.HopRoot, Err: chain.ErrSignatureInvalid}
	}
	return nil
}
