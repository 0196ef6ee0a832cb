package authority_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/keygen"
	"github.com/fancl20/trustchain/pkg/sig"
	"github.com/fancl20/trustchain/pkg/store/impl/memory"
)

const testBits = 32

// wireTransport delivers messages in process after a JSON round trip.
type wireTransport struct {
	clients map[string]*authority.Client
}

func (w *wireTransport) Deliver(ctx context.Context, peer authority.Peer, msg *chain.SignedMessage) (authority.Verdict, error) {
	c, ok := w.clients[peer.Address]
	if !ok {
		return authority.Verdict{}, authority.ErrUpstreamUnavailable
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return authority.Verdict{}, err
	}
	var in chain.SignedMessage
	if err := json.Unmarshal(b, &in); err != nil {
		return authority.Verdict{}, err
	}
	return c.Receive(ctx, &in), nil
}

func peerURL(name string) string {
	return "http://" + name + ".test"
}

// countingRoot counts certificate fetches.
type countingRoot struct {
	authority.RootUpstream
	fetches atomic.Int32
}

func (c *countingRoot) RootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	c.fetches.Add(1)
	return c.RootUpstream.RootCertificate(ctx)
}

type hierarchy struct {
	root      *authority.Root
	ica       *authority.Intermediate
	transport *wireTransport
}

// otherKey returns a key pair whose modulus differs from not.
func otherKey(t *testing.T, not sig.PublicKey) keygen.KeyPair {
	t.Helper()
	for range 100 {
		kp, err := keygen.NewGenerator().Generate(testBits)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if kp.N.Cmp(not.N) != 0 {
			return kp
		}
	}
	t.Fatal("could not generate a different key pair")
	return keygen.KeyPair{}
}

func newState() *authority.State {
	return authority.NewState(keygen.NewGenerator(), testBits)
}

func newHierarchy(t *testing.T, upstream func(authority.RootUpstream) authority.RootUpstream) *hierarchy {
	t.Helper()
	ctx := context.Background()
	root := authority.NewRoot(newState(), memory.New(), nil)
	if _, err := root.GenerateKeys(ctx); err != nil {
		t.Fatalf("root GenerateKeys failed: %v", err)
	}
	if _, err := root.IssueRootCertificate(ctx); err != nil {
		t.Fatalf("IssueRootCertificate failed: %v", err)
	}
	var up authority.RootUpstream = root
	if upstream != nil {
		up = upstream(root)
	}
	ica := authority.NewIntermediate(authority.IntermediateConfig{
		State:      newState(),
		Store:      memory.New(),
		Root:       up,
		ClientBits: testBits,
	})
	if _, err := ica.GenerateKeys(ctx); err != nil {
		t.Fatalf("intermediate GenerateKeys failed: %v", err)
	}
	return &hierarchy{
		root:      root,
		ica:       ica,
		transport: &wireTransport{clients: make(map[string]*authority.Client)},
	}
}

func (h *hierarchy) client(t *testing.T, name string, enroll bool) *authority.Client {
	t.Helper()
	ctx := context.Background()
	c := authority.NewClient(authority.ClientConfig{
		Name:         name,
		Store:        memory.New(),
		Intermediate: h.ica,
		Transport:    h.transport,
	})
	h.transport.clients[peerURL(name)] = c
	if enroll {
		if _, err := c.FetchAuthorityCertificates(ctx); err != nil {
			t.Fatalf("%s: FetchAuthorityCertificates failed: %v", name, err)
		}
		if _, err := c.Enroll(ctx); err != nil {
			t.Fatalf("%s: Enroll failed: %v", name, err)
		}
	}
	return c
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHierarchy(t, nil)
	ica, err := h.ica.RequestCertificate(ctx)
	if err != nil {
		t.Fatalf("RequestCertificate failed: %v", err)
	}
	if ica.Subject != authority.DefaultIntermediateSubject || ica.Issuer != cert.RootSubject {
		t.Errorf("unexpected intermediate certificate %q issued by %q", ica.Subject, ica.Issuer)
	}

	alice := h.client(t, "alice", true)
	bob := h.client(t, "bob", true)
	if err := alice.Directory().Add("bob", peerURL("bob")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	res, err := alice.Send(ctx, "bob", "hello", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !res.Valid || res.Check != chain.CheckValid {
		t.Fatalf("Send verdict = %+v, want valid", res)
	}

	got, ok := bob.LastReceived()
	if !ok {
		t.Fatal("bob has no received message")
	}
	want := authority.ReceivedMessage{From: "alice", Message: "hello", Check: chain.CheckValid, Valid: true}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(authority.ReceivedMessage{}, "ID", "ReceivedAt")); diff != "" {
		t.Errorf("LastReceived mismatch (-want +got):\n%s", diff)
	}

	subjects, err := h.root.SignedIntermediates(ctx)
	if err != nil {
		t.Fatalf("SignedIntermediates failed: %v", err)
	}
	if diff := cmp.Diff([]string{authority.DefaultIntermediateSubject}, subjects); diff != "" {
		t.Errorf("SignedIntermediates mismatch (-want +got):\n%s", diff)
	}
}

func TestOverrideIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHierarchy(t, nil)
	if _, err := h.ica.RequestCertificate(ctx); err != nil {
		t.Fatalf("RequestCertificate failed: %v", err)
	}
	alice := h.client(t, "alice", true)
	bob := h.client(t, "bob", true)
	if err := alice.Directory().Add("bob", peerURL("bob")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	res, err := alice.Send(ctx, "bob", "hello", &authority.Override{R: big.NewInt(11), S: big.NewInt(13)})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.Valid || res.Check != chain.CheckMessageInvalid {
		t.Errorf("verdict = %+v, want message signature invalid", res)
	}
	if res.Signature.S.Int64() != 13 {
		t.Errorf("override not applied: %v", res.Signature)
	}
	if got, _ := bob.LastReceived(); got.Valid {
		t.Error("bob recorded a forged message as valid")
	}
}

func TestOperationsRequireKeyState(t *testing.T) {
	ctx := context.Background()

	root := authority.NewRoot(newState(), memory.New(), nil)
	if _, err := root.IssueRootCertificate(ctx); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("IssueRootCertificate before keys = %v", err)
	}
	if _, err := root.RootCertificate(ctx); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("RootCertificate before issue = %v", err)
	}
	if _, err := root.GenerateKeys(ctx); err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	if _, err := root.SignIntermediate(ctx, authority.SigningRequest{}); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("SignIntermediate before root certificate = %v", err)
	}

	h := newHierarchy(t, nil)
	if _, err := h.ica.IssueClientCertificate(ctx, "alice"); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("IssueClientCertificate before certification = %v", err)
	}
	fresh := authority.NewIntermediate(authority.IntermediateConfig{
		State: newState(), Store: memory.New(), Root: h.root,
	})
	if _, err := fresh.RequestCertificate(ctx); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("RequestCertificate before keys = %v", err)
	}

	alice := h.client(t, "alice", false)
	if _, err := alice.Enroll(ctx); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("Enroll before fetching certificates = %v", err)
	}
	if _, err := alice.Send(ctx, "nobody", "hi", nil); !errors.Is(err, authority.ErrUnknownPeer) {
		t.Errorf("Send to unknown peer = %v", err)
	}
}

func TestSignIntermediateRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	h := newHierarchy(t, nil)
	pk, err := newState().GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	tests := map[string]struct {
		req  authority.SigningRequest
		want error
	}{
		"not an intermediate": {
			req:  authority.SigningRequest{Subject: "Some CA", PublicKey: pk, Timestamp: 1},
			want: cert.ErrSubjectMismatch,
		},
		"no key": {
			req:  authority.SigningRequest{Subject: "Intermediate X", Timestamp: 1},
			want: cert.ErrMalformed,
		},
		"no timestamp": {
			req:  authority.SigningRequest{Subject: "Intermediate X", PublicKey: pk},
			want: cert.ErrMalformed,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := h.root.SignIntermediate(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("SignIntermediate = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRootFetchIsSharedAndCached(t *testing.T) {
	ctx := context.Background()
	var counter *countingRoot
	h := newHierarchy(t, func(up authority.RootUpstream) authority.RootUpstream {
		counter = &countingRoot{RootUpstream: up}
		return counter
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ica.FetchRootCertificate(ctx); err != nil {
				t.Errorf("FetchRootCertificate failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := counter.fetches.Load(); n < 1 || n > 8 {
		t.Fatalf("upstream fetched %d times", n)
	}
	before := counter.fetches.Load()
	if _, err := h.ica.RequestCertificate(ctx); err != nil {
		t.Fatalf("RequestCertificate failed: %v", err)
	}
	if after := counter.fetches.Load(); after != before {
		t.Errorf("RequestCertificate fetched the cached root again (%d -> %d)", before, after)
	}
	if _, err := h.ica.FetchRootCertificate(ctx); err != nil {
		t.Fatalf("FetchRootCertificate failed: %v", err)
	}
	if after := counter.fetches.Load(); after != before+1 {
		t.Errorf("FetchRootCertificate did not ask the root (%d -> %d)", before, after)
	}
}

// rekeyRoot replaces the Root key pair and certificate with a different one.
func rekeyRoot(t *testing.T, h *hierarchy) *cert.RootCertificate {
	t.Helper()
	ctx := context.Background()
	old, err := h.root.RootCertificate(ctx)
	if err != nil {
		t.Fatalf("RootCertificate failed: %v", err)
	}
	for range 100 {
		if _, err := h.root.GenerateKeys(ctx); err != nil {
			t.Fatalf("GenerateKeys failed: %v", err)
		}
		root, err := h.root.IssueRootCertificate(ctx)
		if err != nil {
			t.Fatalf("IssueRootCertificate failed: %v", err)
		}
		if !root.PublicKey.Equal(old.PublicKey) {
			return root
		}
	}
	t.Fatal("could not generate a different root key")
	return nil
}

func TestRootRekeyRefreshesCache(t *testing.T) {
	ctx := context.Background()
	h := newHierarchy(t, nil)
	if _, err := h.ica.RequestCertificate(ctx); err != nil {
		t.Fatalf("RequestCertificate failed: %v", err)
	}

	// The cached root is stale after re-keying and is refetched once.
	root := rekeyRoot(t, h)
	if _, err := h.ica.RequestCertificate(ctx); err != nil {
		t.Fatalf("RequestCertificate after re-key failed: %v", err)
	}
	certs, err := h.ica.Certificates(ctx)
	if err != nil {
		t.Fatalf("Certificates failed: %v", err)
	}
	if !certs.Root.PublicKey.Equal(root.PublicKey) {
		t.Errorf("stored root key %v, want %v", certs.Root.PublicKey, root.PublicKey)
	}

	root = rekeyRoot(t, h)
	got, err := h.ica.FetchRootCertificate(ctx)
	if err != nil {
		t.Fatalf("FetchRootCertificate failed: %v", err)
	}
	if !got.PublicKey.Equal(root.PublicKey) {
		t.Errorf("FetchRootCertificate returned key %v, want %v", got.PublicKey, root.PublicKey)
	}
}

// forgingRoot signs intermediates with a key the root certificate does not
// carry.
type forgingRoot struct {
	authority.RootUpstream
	forger cert.Issuer
}

func (f *forgingRoot) SignIntermediate(ctx context.Context, req authority.SigningRequest) (*cert.IntermediateCertificate, error) {
	return f.forger.IssueIntermediate(req.Subject, req.PublicKey, req.Timestamp), nil
}

func TestRequestCertificateVerifiesRootSignature(t *testing.T) {
	ctx := context.Background()
	forging := &forgingRoot{}
	h := newHierarchy(t, func(up authority.RootUpstream) authority.RootUpstream {
		forging.RootUpstream = up
		return forging
	})
	root, err := h.root.RootCertificate(ctx)
	if err != nil {
		t.Fatalf("RootCertificate failed: %v", err)
	}
	kp := otherKey(t, root.PublicKey)
	forging.forger = cert.Issuer{Name: cert.RootSubject, PublicKey: kp.PublicKey(), PrivateKey: kp.D}
	_, err = h.ica.RequestCertificate(ctx)
	if !errors.Is(err, chain.ErrSignatureInvalid) {
		t.Fatalf("RequestCertificate = %v, want ErrSignatureInvalid", err)
	}
}

func TestRegeneratingKeysDropsCertificate(t *testing.T) {
	ctx := context.Background()
	h := newHierarchy(t, nil)
	if _, err := h.ica.RequestCertificate(ctx); err != nil {
		t.Fatalf("RequestCertificate failed: %v", err)
	}
	if _, err := h.ica.IssueClientCertificate(ctx, "alice"); err != nil {
		t.Fatalf("IssueClientCertificate failed: %v", err)
	}
	if _, err := h.ica.GenerateKeys(ctx); err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	if _, err := h.ica.IssueClientCertificate(ctx, "alice"); !errors.Is(err, authority.ErrKeyStateMissing) {
		t.Errorf("IssueClientCertificate after key rotation = %v", err)
	}
}

func TestDirectory(t *testing.T) {
	d := authority.NewDirectory("carol")
	for _, p := range []authority.Peer{
		{Name: "bob", Address: "http://bob:8000"},
		{Name: "alice", Address: "https://alice:8000/"},
		{Name: "bob", Address: "http://bob:9000"},
	} {
		if err := d.Add(p.Name, p.Address); err != nil {
			t.Fatalf("Add(%s, %s) failed: %v", p.Name, p.Address, err)
		}
	}

	want := []authority.Peer{
		{Name: "alice", Address: "https://alice:8000"},
		{Name: "bob", Address: "http://bob:9000"},
	}
	if diff := cmp.Diff(want, d.Peers()); diff != "" {
		t.Errorf("Peers mismatch (-want +got):\n%s", diff)
	}
	if _, ok := d.Peer("carol"); ok {
		t.Error("Peer(carol) found")
	}
}

func TestDirectoryRejectsInvalidPeers(t *testing.T) {
	d := authority.NewDirectory("carol")
	tests := map[string]authority.Peer{
		"own name":       {Name: "carol", Address: "http://carol:8000"},
		"empty name":     {Name: "", Address: "http://bob:8000"},
		"bare host":      {Name: "bob", Address: "bob:8000"},
		"unknown scheme": {Name: "bob", Address: "ftp://bob:8000"},
		"relative":       {Name: "bob", Address: "/bob"},
		"unparsable":     {Name: "bob", Address: "http://[::1"},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			if err := d.Add(p.Name, p.Address); !errors.Is(err, authority.ErrInvalidPeer) {
				t.Errorf("Add(%q, %q) = %v, want ErrInvalidPeer", p.Name, p.Address, err)
			}
		})
	}
	if peers := d.Peers(); len(peers) != 0 {
		t.Errorf("rejected peers were stored: %v", peers)
	}
}
