package authority

import (
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/scionproto/scion/pkg/private/serrors"
)

// Peer is a client reachable for message delivery.
type Peer struct {
	Name string
	// Address is the base URL of the peer's client service.
	Address string
}

// Directory holds the clients a client may address messages to. The
// owning client itself is never a peer.
type Directory struct {
	owner string

	mu    sync.RWMutex
	peers map[string]Peer
}

// NewDirectory creates an empty Directory for the client named owner.
func NewDirectory(owner string) *Directory {
	return &Directory{
		owner: owner,
		peers: make(map[string]Peer),
	}
}

// Add registers or replaces a peer. The address must be an absolute http
// or https URL.
func (d *Directory) Add(name, address string) error {
	if name == "" {
		return serrors.Wrap("peer name must be a non-empty string", ErrInvalidPeer)
	}
	if name == d.owner {
		return serrors.Wrap("a client cannot be its own peer", ErrInvalidPeer, "peer", name)
	}
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return serrors.Wrap("peer address must be an http(s) URL", ErrInvalidPeer,
			"peer", name, "address", address)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[name] = Peer{Name: name, Address: strings.TrimRight(address, "/")}
	return nil
}

// Peers returns all known peers ordered by name.
func (d *Directory) Peers() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	peers := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	slices.SortFunc(peers, func(a, b Peer) int { return strings.Compare(a.Name, b.Name) })
	return peers
}

// Peer resolves name.
func (d *Directory) Peer(name string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[name]
	return p, ok
}
