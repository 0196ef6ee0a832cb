package api

import (
	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/sig"
)

// Empty is the request of parameterless procedures.
type Empty struct{}

// GenerateKeysResponse carries the public half of a fresh key pair.
type GenerateKeysResponse struct {
	PublicKey sig.PublicKey `json:"public_key"`
}

// IssueClientCertificateRequest names the client to certify.
type IssueClientCertificateRequest struct {
	Subject string `json:"subject"`
}

// EnrollResponse is the certificate a client obtained. The private key
// stays with the client.
type EnrollResponse struct {
	Subject     string           `json:"subject"`
	PublicKey   sig.PublicKey    `json:"public_key"`
	Certificate cert.Certificate `json:"certificate"`
}

// SendMessageRequest asks a client to sign and deliver a message.
type SendMessageRequest struct {
	Peer     string              `json:"peer"`
	Message  string              `json:"message"`
	Override *authority.Override `json:"override,omitempty"`
}

// LastMessageResponse is the last message a client received.
type LastMessageResponse struct {
	Received bool                       `json:"received"`
	Message  *authority.ReceivedMessage `json:"message,omitempty"`
}
