package authority

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/store"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name is the identity the client enrolls and signs messages as.
	Name         string
	Store        store.Store
	Intermediate IntermediateUpstream
	Transport    PeerTransport
	Directory    *Directory
	Now          func() time.Time
}

// Client enrolls with an intermediate and exchanges signed messages with
// other clients.
type Client struct {
	name         string
	store        store.Store
	intermediate IntermediateUpstream
	transport    PeerTransport
	directory    *Directory
	now          func() time.Time

	mu   sync.RWMutex
	last *ReceivedMessage
}

// NewClient creates a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Directory == nil {
		cfg.Directory = NewDirectory(cfg.Name)
	}
	return &Client{
		name:         cfg.Name,
		store:        cfg.Store,
		intermediate: cfg.Intermediate,
		transport:    cfg.Transport,
		directory:    cfg.Directory,
		now:          nowFunc(cfg.Now),
	}
}

// Name returns the client identity.
func (c *Client) Name() string {
	return c.name
}

// Directory returns the peers this client can send to.
func (c *Client) Directory() *Directory {
	return c.directory
}

// FetchAuthorityCertificates obtains the root and intermediate certificates
// from the intermediate, checks their shape and stores them.
func (c *Client) FetchAuthorityCertificates(ctx context.Context) (*AuthorityCertificates, error) {
	certs, err := c.intermediate.Certificates(ctx)
	if err != nil {
		return nil, serrors.Wrap("fetching authority certificates", err)
	}
	if certs == nil || certs.Root == nil || certs.Intermediate == nil {
		return nil, serrors.Wrap("expected a root and an intermediate certificate", cert.ErrMalformed)
	}
	if err := certs.Root.Validate(); err != nil {
		return nil, &chain.Error{Hop: chain.HopRoot, Err: err}
	}
	if err := certs.Intermediate.Validate(); err != nil {
		return nil, &chain.Error{Hop: chain.HopIntermediate, Err: err}
	}
	if err := store.SaveJSON(ctx, c.store, store.RoleRoot, certs.Root); err != nil {
		return nil, serrors.Wrap("saving root certificate", err)
	}
	if err := store.SaveJSON(ctx, c.store, store.RoleIntermediate, certs.Intermediate); err != nil {
		return nil, serrors.Wrap("saving intermediate certificate", err)
	}
	log.FromCtx(ctx).Info("Stored authority certificates",
		"root", certs.Root.Subject, "intermediate", certs.Intermediate.Subject)
	return certs, nil
}

// Enroll obtains a client certificate for the client's name, validates the
// full chain and stores the bundle.
func (c *Client) Enroll(ctx context.Context) (*cert.ClientCertificate, error) {
	root, ica, err := c.authorities(ctx)
	if err != nil {
		return nil, err
	}
	cc, err := c.intermediate.IssueClientCertificate(ctx, c.name)
	if err != nil {
		return nil, serrors.Wrap("requesting client certificate", err, "subject", c.name)
	}
	cc.Expect(c.name)
	if err := chain.ValidateClientCertificate(cc, ica, root); err != nil {
		return nil, err
	}
	if err := store.SaveJSON(ctx, c.store, store.RoleClient, cc); err != nil {
		return nil, serrors.Wrap("saving client certificate", err)
	}
	log.FromCtx(ctx).Info("Enrolled client", "subject", c.name, "public_key", cc.PublicKey)
	return cc, nil
}

// Compose signs message with the client's key and attaches the chain.
func (c *Client) Compose(ctx context.Context, message string) (*chain.SignedMessage, error) {
	root, ica, err := c.authorities(ctx)
	if err != nil {
		return nil, err
	}
	cc := (&cert.ClientCertificate{}).Expect(c.name)
	if err := store.LoadJSON(ctx, c.store, store.RoleClient, cc); err != nil {
		if store.IsNotFound(err) {
			return nil, serrors.Wrap("client not enrolled", ErrKeyStateMissing)
		}
		return nil, err
	}
	if err := cc.Validate(); err != nil {
		return nil, serrors.Wrap("stored client certificate", err)
	}
	return chain.Sign(cc, ica, root, c.name, message, c.now().Unix()), nil
}

// Send composes message and delivers it to the named peer. A non-nil
// override replaces the signature before delivery.
func (c *Client) Send(ctx context.Context, peer, message string, override *Override) (*SendResult, error) {
	p, ok := c.directory.Peer(peer)
	if !ok {
		return nil, serrors.Wrap("resolving peer", ErrUnknownPeer, "peer", peer)
	}
	msg, err := c.Compose(ctx, message)
	if err != nil {
		return nil, err
	}
	if override != nil {
		msg.Override(override.R, override.S)
	}
	v, err := c.transport.Deliver(ctx, p, msg)
	if err != nil {
		return nil, serrors.Wrap("delivering message", err, "peer", peer)
	}
	log.FromCtx(ctx).Info("Delivered message", "peer", peer, "check", v.Check)
	return &SendResult{
		Message:   msg.Message,
		Check:     v.Check,
		Valid:     v.Valid,
		Signature: msg.Signature,
	}, nil
}

// Receive validates an inbound message against the chain it carries and
// records the verdict as the last received message.
func (c *Client) Receive(ctx context.Context, msg *chain.SignedMessage) Verdict {
	err := chain.ValidateMessage(msg)
	v := Verdict{Message: msg.Message, Check: chain.Check(err), Valid: err == nil}
	var chainErr *chain.Error
	if errors.As(err, &chainErr) {
		v.Hop = chainErr.Hop
	}

	rec := &ReceivedMessage{
		ID:         uuid.New(),
		From:       msg.Subject,
		Message:    msg.Message,
		Check:      v.Check,
		Valid:      v.Valid,
		ReceivedAt: c.now(),
	}
	c.mu.Lock()
	c.last = rec
	c.mu.Unlock()

	logger := log.FromCtx(ctx)
	if err != nil {
		logger.Info("Rejected message", "id", rec.ID, "from", rec.From, "err", err)
	} else {
		logger.Info("Accepted message", "id", rec.ID, "from", rec.From)
	}
	return v
}

// LastReceived returns the last inbound message, if any.
func (c *Client) LastReceived() (ReceivedMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return ReceivedMessage{}, false
	}
	return *c.last, true
}

func (c *Client) authorities(ctx context.Context) (*cert.RootCertificate, *cert.IntermediateCertificate, error) {
	var root cert.RootCertificate
	var ica cert.IntermediateCertificate
	for _, l := range []struct {
		role store.Role
		v    any
	}{
		{store.RoleRoot, &root},
		{store.RoleIntermediate, &ica},
	} {
		if err := store.LoadJSON(ctx, c.store, l.role, l.v); err != nil {
			if store.IsNotFound(err) {
				return nil, nil, serrors.Wrap("authority certificates not fetched", ErrKeyStateMissing, "role", l.role)
			}
			return nil, nil, err
		}
	}
	return &root, &ica, nil
}
