package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
)

func unary[Req, Res any](
	procedure string,
	fn func(context.Context, *Req) (*Res, error),
	opts ...connect.HandlerOption,
) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, toConnect(err)
			}
			return connect.NewResponse(res), nil
		}, opts...)
}

func rootHandlers(r *authority.Root, opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		RootServiceGenerateKeysProcedure: unary(RootServiceGenerateKeysProcedure,
			func(ctx context.Context, _ *Empty) (*GenerateKeysResponse, error) {
				pk, err := r.GenerateKeys(ctx)
				if err != nil {
					return nil, err
				}
				return &GenerateKeysResponse{PublicKey: pk}, nil
			}, opts...),
		RootServiceIssueRootCertificateProcedure: unary(RootServiceIssueRootCertificateProcedure,
			func(ctx context.Context, _ *Empty) (*cert.RootCertificate, error) {
				return r.IssueRootCertificate(ctx)
			}, opts...),
		RootServiceRootCertificateProcedure: unary(RootServiceRootCertificateProcedure,
			func(ctx context.Context, _ *Empty) (*cert.RootCertificate, error) {
				return r.RootCertificate(ctx)
			}, opts...),
		RootServiceSignIntermediateProcedure: unary(RootServiceSignIntermediateProcedure,
			func(ctx context.Context, req *authority.SigningRequest) (*cert.IntermediateCertificate, error) {
				return r.SignIntermediate(ctx, *req)
			}, opts...),
	}
}

func intermediateHandlers(i *authority.Intermediate, opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		IntermediateServiceGenerateKeysProcedure: unary(IntermediateServiceGenerateKeysProcedure,
			func(ctx context.Context, _ *Empty) (*GenerateKeysResponse, error) {
				pk, err := i.GenerateKeys(ctx)
				if err != nil {
					return nil, err
				}
				return &GenerateKeysResponse{PublicKey: pk}, nil
			}, opts...),
		IntermediateServiceFetchRootCertificateProcedure: unary(IntermediateServiceFetchRootCertificateProcedure,
			func(ctx context.Context, _ *Empty) (*cert.RootCertificate, error) {
				return i.FetchRootCertificate(ctx)
			}, opts...),
		IntermediateServiceRequestCertificateProcedure: unary(IntermediateServiceRequestCertificateProcedure,
			func(ctx context.Context, _ *Empty) (*cert.IntermediateCertificate, error) {
				return i.RequestCertificate(ctx)
			}, opts...),
		IntermediateServiceCertificatesProcedure: unary(IntermediateServiceCertificatesProcedure,
			func(ctx context.Context, _ *Empty) (*authority.AuthorityCertificates, error) {
				return i.Certificates(ctx)
			}, opts...),
		IntermediateServiceIssueClientCertificateProcedure: unary(IntermediateServiceIssueClientCertificateProcedure,
			func(ctx context.Context, req *IssueClientCertificateRequest) (*cert.ClientCertificate, error) {
				return i.IssueClientCertificate(ctx, req.Subject)
			}, opts...),
	}
}

func clientHandlers(c *authority.Client, m *Metrics, opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		ClientServiceFetchCertificatesProcedure: unary(ClientServiceFetchCertificatesProcedure,
			func(ctx context.Context, _ *Empty) (*authority.AuthorityCertificates, error) {
				return c.FetchAuthorityCertificates(ctx)
			}, opts...),
		ClientServiceEnrollProcedure: unary(ClientServiceEnrollProcedure,
			func(ctx context.Context, _ *Empty) (*EnrollResponse, error) {
				cc, err := c.Enroll(ctx)
				if err != nil {
					return nil, err
				}
				return &EnrollResponse{
					Subject:     cc.Certificate.Subject,
					PublicKey:   cc.PublicKey,
					Certificate: cc.Certificate,
				}, nil
			}, opts...),
		ClientServiceSendMessageProcedure: unary(ClientServiceSendMessageProcedure,
			func(ctx context.Context, req *SendMessageRequest) (*authority.SendResult, error) {
				return c.Send(ctx, req.Peer, req.Message, req.Override)
			}, opts...),
		ClientServiceReceiveMessageProcedure: unary(ClientServiceReceiveMessageProcedure,
			func(ctx context.Context, req *chain.SignedMessage) (*authority.Verdict, error) {
				v := c.Receive(ctx, req)
				if m != nil {
					m.ObserveVerdict(v)
				}
				return &v, nil
			}, opts...),
		ClientServiceLastMessageProcedure: unary(ClientServiceLastMessageProcedure,
			func(ctx context.Context, _ *Empty) (*LastMessageResponse, error) {
				msg, ok := c.LastReceived()
				if !ok {
					return &LastMessageResponse{}, nil
				}
				return &LastMessageResponse{Received: true, Message: &msg}, nil
			}, opts...),
	}
}
