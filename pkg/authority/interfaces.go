package authority

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/sig"
)

// SigningRequest asks the Root to certify an intermediate's key.
type SigningRequest struct {
	Subject   string        `json:"subject"`
	PublicKey sig.PublicKey `json:"public_key"`
	Timestamp int64         `json:"timestamp"`
}

// AuthorityCertificates is the root and intermediate certificate pair an
// intermediate hands to its clients.
type AuthorityCertificates struct {
	Root         *cert.RootCertificate         `json:"root"`
	Intermediate *cert.IntermediateCertificate `json:"intermediate"`
}

// Override replaces the signature of an outgoing message.
type Override struct {
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// Verdict is a receiver's answer to a delivered message.
type Verdict struct {
	Message string `json:"message"`
	Check   string `json:"check"`
	Valid   bool   `json:"valid"`
	// Hop names the failing link when Valid is false.
	Hop chain.Hop `json:"hop,omitempty"`
}

// SendResult reports a delivered message and the receiver's verdict.
type SendResult struct {
	Message   string        `json:"message"`
	Check     string        `json:"check"`
	Valid     bool          `json:"valid"`
	Signature sig.Signature `json:"signature"`
}

// ReceivedMessage is a client's record of the last inbound message.
type ReceivedMessage struct {
	ID         uuid.UUID `json:"id"`
	From       string    `json:"from"`
	Message    string    `json:"message"`
	Check      string    `json:"check"`
	Valid      bool      `json:"valid"`
	ReceivedAt time.Time `json:"received_at"`
}

// RootUpstream is the part of the Root an intermediate depends on.
type RootUpstream interface {
	RootCertificate(ctx context.Context) (*cert.RootCertificate, error)
	SignIntermediate(ctx context.Context, req SigningRequest) (*cert.IntermediateCertificate, error)
}

// IntermediateUpstream is the part of an intermediate a client depends on.
type IntermediateUpstream interface {
	Certificates(ctx context.Context) (*AuthorityCertificates, error)
	IssueClientCertificate(ctx context.Context, subject string) (*cert.ClientCertificate, error)
}

// PeerTransport delivers signed messages to other clients.
type PeerTransport interface {
	Deliver(ctx context.Context, peer Peer, msg *chain.SignedMessage) (Verdict, error)
}
