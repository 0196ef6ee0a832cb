package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/quic-go/quic-go/http3"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/sig"
)

// DefaultTimeout bounds each outgoing call of the HTTP clients built by
// NewHTTPClient.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns the client used for upstream calls. With h3 set it
// speaks HTTP/3 using tlsConfig.
func NewHTTPClient(h3 bool, tlsConfig *tls.Config) *http.Client {
	if h3 {
		return &http.Client{
			Timeout:   DefaultTimeout,
			Transport: &http3.Transport{TLSClientConfig: tlsConfig},
		}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Timeout: DefaultTimeout, Transport: transport}
}

func newClient[Req, Res any](clt connect.HTTPClient, baseURL, procedure string, opts []connect.ClientOption) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](clt, baseURL+procedure, opts...)
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnect(err)
	}
	return res.Msg, nil
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(codec{})}, opts...)
}

// RootClient calls a remote Root. It implements authority.RootUpstream.
type RootClient struct {
	generateKeys    *connect.Client[Empty, GenerateKeysResponse]
	issueRoot       *connect.Client[Empty, cert.RootCertificate]
	rootCertificate *connect.Client[Empty, cert.RootCertificate]
	sign            *connect.Client[authority.SigningRequest, cert.IntermediateCertificate]
}

var _ authority.RootUpstream = (*RootClient)(nil)

// NewRootClient creates a client for the Root at baseURL.
func NewRootClient(clt connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RootClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &RootClient{
		generateKeys:    newClient[Empty, GenerateKeysResponse](clt, baseURL, RootServiceGenerateKeysProcedure, opts),
		issueRoot:       newClient[Empty, cert.RootCertificate](clt, baseURL, RootServiceIssueRootCertificateProcedure, opts),
		rootCertificate: newClient[Empty, cert.RootCertificate](clt, baseURL, RootServiceRootCertificateProcedure, opts),
		sign:            newClient[authority.SigningRequest, cert.IntermediateCertificate](clt, baseURL, RootServiceSignIntermediateProcedure, opts),
	}
}

// GenerateKeys replaces the Root key pair.
func (c *RootClient) GenerateKeys(ctx context.Context) (sig.PublicKey, error) {
	res, err := call(ctx, c.generateKeys, &Empty{})
	if err != nil {
		return sig.PublicKey{}, err
	}
	return res.PublicKey, nil
}

// IssueRootCertificate asks the Root to self-sign its certificate.
func (c *RootClient) IssueRootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	return call(ctx, c.issueRoot, &Empty{})
}

// RootCertificate fetches the root certificate.
func (c *RootClient) RootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	return call(ctx, c.rootCertificate, &Empty{})
}

// SignIntermediate submits a signing request.
func (c *RootClient) SignIntermediate(ctx context.Context, req authority.SigningRequest) (*cert.IntermediateCertificate, error) {
	return call(ctx, c.sign, &req)
}

// IntermediateClient calls a remote intermediate. It implements
// authority.IntermediateUpstream.
type IntermediateClient struct {
	generateKeys       *connect.Client[Empty, GenerateKeysResponse]
	fetchRoot          *connect.Client[Empty, cert.RootCertificate]
	requestCertificate *connect.Client[Empty, cert.IntermediateCertificate]
	certificates       *connect.Client[Empty, authority.AuthorityCertificates]
	issueClient        *connect.Client[IssueClientCertificateRequest, cert.ClientCertificate]
}

var _ authority.IntermediateUpstream = (*IntermediateClient)(nil)

// NewIntermediateClient creates a client for the intermediate at baseURL.
func NewIntermediateClient(clt connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *IntermediateClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &IntermediateClient{
		generateKeys:       newClient[Empty, GenerateKeysResponse](clt, baseURL, IntermediateServiceGenerateKeysProcedure, opts),
		fetchRoot:          newClient[Empty, cert.RootCertificate](clt, baseURL, IntermediateServiceFetchRootCertificateProcedure, opts),
		requestCertificate: newClient[Empty, cert.IntermediateCertificate](clt, baseURL, IntermediateServiceRequestCertificateProcedure, opts),
		certificates:       newClient[Empty, authority.AuthorityCertificates](clt, baseURL, IntermediateServiceCertificatesProcedure, opts),
		issueClient:        newClient[IssueClientCertificateRequest, cert.ClientCertificate](clt, baseURL, IntermediateServiceIssueClientCertificateProcedure, opts),
	}
}

// GenerateKeys replaces the intermediate key pair.
func (c *IntermediateClient) GenerateKeys(ctx context.Context) (sig.PublicKey, error) {
	res, err := call(ctx, c.generateKeys, &Empty{})
	if err != nil {
		return sig.PublicKey{}, err
	}
	return res.PublicKey, nil
}

// FetchRootCertificate makes the intermediate fetch the root certificate.
func (c *IntermediateClient) FetchRootCertificate(ctx context.Context) (*cert.RootCertificate, error) {
	return call(ctx, c.fetchRoot, &Empty{})
}

// RequestCertificate makes the intermediate request its certificate.
func (c *IntermediateClient) RequestCertificate(ctx context.Context) (*cert.IntermediateCertificate, error) {
	return call(ctx, c.requestCertificate, &Empty{})
}

// Certificates fetches the root and intermediate certificates.
func (c *IntermediateClient) Certificates(ctx context.Context) (*authority.AuthorityCertificates, error) {
	return call(ctx, c.certificates, &Empty{})
}

// IssueClientCertificate requests a certificate bundle for subject.
func (c *IntermediateClient) IssueClientCertificate(ctx context.Context, subject string) (*cert.ClientCertificate, error) {
	return call(ctx, c.issueClient, &IssueClientCertificateRequest{Subject: subject})
}

// ClientClient calls a remote client node.
type ClientClient struct {
	fetch   *connect.Client[Empty, authority.AuthorityCertificates]
	enroll  *connect.Client[Empty, EnrollResponse]
	send    *connect.Client[SendMessageRequest, authority.SendResult]
	receive *connect.Client[chain.SignedMessage, authority.Verdict]
	last    *connect.Client[Empty, LastMessageResponse]
}

// NewClientClient creates a client for the client node at baseURL.
func NewClientClient(clt connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ClientClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &ClientClient{
		fetch:   newClient[Empty, authority.AuthorityCertificates](clt, baseURL, ClientServiceFetchCertificatesProcedure, opts),
		enroll:  newClient[Empty, EnrollResponse](clt, baseURL, ClientServiceEnrollProcedure, opts),
		send:    newClient[SendMessageRequest, authority.SendResult](clt, baseURL, ClientServiceSendMessageProcedure, opts),
		receive: newClient[chain.SignedMessage, authority.Verdict](clt, baseURL, ClientServiceReceiveMessageProcedure, opts),
		last:    newClient[Empty, LastMessageResponse](clt, baseURL, ClientServiceLastMessageProcedure, opts),
	}
}

// FetchCertificates makes the client fetch its authority certificates.
func (c *ClientClient) FetchCertificates(ctx context.Context) (*authority.AuthorityCertificates, error) {
	return call(ctx, c.fetch, &Empty{})
}

// Enroll makes the client obtain its certificate.
func (c *ClientClient) Enroll(ctx context.Context) (*EnrollResponse, error) {
	return call(ctx, c.enroll, &Empty{})
}

// SendMessage makes the client sign and deliver a message to peer.
func (c *ClientClient) SendMessage(ctx context.Context, req SendMessageRequest) (*authority.SendResult, error) {
	return call(ctx, c.send, &req)
}

// ReceiveMessage delivers a signed message to the client.
func (c *ClientClient) ReceiveMessage(ctx context.Context, msg *chain.SignedMessage) (*authority.Verdict, error) {
	return call(ctx, c.receive, msg)
}

// LastMessage returns the last message the client received.
func (c *ClientClient) LastMessage(ctx context.Context) (*LastMessageResponse, error) {
	return call(ctx, c.last, &Empty{})
}

// PeerTransport delivers messages to peers over RPC. It implements
// authority.PeerTransport.
type PeerTransport struct {
	HTTPClient connect.HTTPClient
	Options    []connect.ClientOption
}

var _ authority.PeerTransport = (*PeerTransport)(nil)

// Deliver sends msg to the ReceiveMessage procedure of peer.
func (t *PeerTransport) Deliver(ctx context.Context, peer authority.Peer, msg *chain.SignedMessage) (authority.Verdict, error) {
	v, err := NewClientClient(t.HTTPClient, peer.Address, t.Options...).ReceiveMessage(ctx, msg)
	if err != nil {
		return authority.Verdict{}, err
	}
	return *v, nil
}
