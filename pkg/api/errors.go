package api

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/cert"
	"github.com/fancl20/trustchain/pkg/chain"
	"github.com/fancl20/trustchain/pkg/store"
)

const (
	headerErrorKind = "Trustchain-Error-Kind"
	headerErrorHop  = "Trustchain-Error-Hop"
)

// ErrRateLimited is returned when the signing rate limit is exceeded.
var ErrRateLimited = serrors.New("rate limited")

// errorKinds is ordered: the first kind matching an error wins.
var errorKinds = []struct {
	name string
	err  error
	code connect.Code
}{
	{"malformed", cert.ErrMalformed, connect.CodeInvalidArgument},
	{"subject_mismatch", cert.ErrSubjectMismatch, connect.CodeInvalidArgument},
	{"signature_invalid", chain.ErrSignatureInvalid, connect.CodePermissionDenied},
	{"key_mismatch", chain.ErrKeyMismatch, connect.CodePermissionDenied},
	{"key_state_missing", authority.ErrKeyStateMissing, connect.CodeFailedPrecondition},
	{"upstream_unavailable", authority.ErrUpstreamUnavailable, connect.CodeUnavailable},
	{"unknown_peer", authority.ErrUnknownPeer, connect.CodeNotFound},
	{"invalid_peer", authority.ErrInvalidPeer, connect.CodeInvalidArgument},
	{"not_found", store.ErrNotFound, connect.CodeNotFound},
	{"rate_limited", ErrRateLimited, connect.CodeResourceExhausted},
}

// toConnect converts a service error into a connect error. The error kind
// and failing hop travel as metadata so clients can restore them. Known
// kinds take precedence over a connect error received from upstream.
func toConnect(err error) error {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		ce := connect.NewError(k.code, err)
		ce.Meta().Set(headerErrorKind, k.name)
		var chainErr *chain.Error
		if errors.As(err, &chainErr) {
			ce.Meta().Set(headerErrorHop, string(chainErr.Hop))
		}
		return ce
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(connect.CodeInternal, err)
}

// remoteError is a failed call with its kind restored. It matches both the
// restored kind and the received *connect.Error.
type remoteError struct {
	restored error
	ce       *connect.Error
}

func (e *remoteError) Error() string { return e.restored.Error() }

func (e *remoteError) Unwrap() []error { return []error{e.restored, e.ce} }

// fromConnect restores the error kind of a failed call. Transport failures
// become authority.ErrUpstreamUnavailable.
func fromConnect(err error) error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return serrors.Wrap("calling upstream", authority.ErrUpstreamUnavailable, "cause", err)
	}
	if name := ce.Meta().Get(headerErrorKind); name != "" {
		for _, k := range errorKinds {
			if k.name != name {
				continue
			}
			restored := serrors.Wrap(ce.Message(), k.err)
			if hop := ce.Meta().Get(headerErrorHop); hop != "" {
				restored = &chain.Error{Hop: chain.Hop(hop), Err: restored}
			}
			return &remoteError{restored: restored, ce: ce}
		}
	}
	switch ce.Code() {
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded:
		return &remoteError{
			restored: serrors.Wrap("calling upstream", authority.ErrUpstreamUnavailable, "cause", ce.Message()),
			ce:       ce,
		}
	}
	return err
}
