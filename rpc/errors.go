package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/storage"
)

// errorDomain tags the ErrorInfo detail that carries a *model.Error.
const errorDomain = "xdao.facetrouter"

func codeFor(c model.Code) codes.Code {
	switch c {
	case model.CodeUnauthorized, model.CodeSelfRenounceOnly:
		return codes.PermissionDenied
	case model.CodeFunctionNotFound:
		return codes.Unimplemented
	case model.CodeSelectorNotFound:
		return codes.NotFound
	case model.CodeSelectorAlreadyExists:
		return codes.AlreadyExists
	case model.CodeNoOpReplace, model.CodeImmutableSelector, model.CodeFacetNotCallable:
		return codes.FailedPrecondition
	case model.CodeInitializerFailed:
		return codes.Aborted
	case model.CodeInternal:
		return codes.Internal
	default:
		return codes.InvalidArgument
	}
}

// toStatus converts a router, storage or envelope error into a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var me *model.Error
	switch {
	case errors.As(err, &me):
		st := status.New(codeFor(me.Code), me.Error())
		if withInfo, derr := st.WithDetails(errorInfo(me)); derr == nil {
			st = withInfo
		}
		return st.Err()
	case errors.Is(err, ErrStaleNonce), errors.Is(err, ErrMissingNonce), errors.Is(err, ErrBadEnvelope),
		errors.Is(err, keys.ErrBadSignature):
		return status.Error(codes.Unauthenticated, err.Error())
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch), errors.Is(err, events.ErrBrokenChain):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func errorInfo(e *model.Error) *errdetails.ErrorInfo {
	md := map[string]string{"message": e.Message}
	if e.Selector != nil {
		md["selector"] = e.Selector.String()
	}
	if e.Facet != nil {
		md["facet"] = e.Facet.String()
	}
	if e.Role != nil {
		md["role"] = e.Role.String()
	}
	if e.Account != nil {
		md["account"] = e.Account.String()
	}
	if e.Cause != nil {
		md["cause"] = e.Cause.Error()
	}
	return &errdetails.ErrorInfo{Reason: string(e.Code), Domain: errorDomain, Metadata: md}
}

// mapRPC turns a gRPC status back into the error the server started from:
// a *model.Error with its original code when the status carries one, a
// storage sentinel for NotFound and DataLoss, ErrUnknownSession, else err
// unchanged.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return fromInfo(info)
		}
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", storage.ErrCIDMismatch, st.Message())
	case codes.Unauthenticated:
		if st.Message() == ErrUnknownSession.Error() {
			return ErrUnknownSession
		}
		return err
	default:
		return err
	}
}

func fromInfo(info *errdetails.ErrorInfo) *model.Error {
	md := info.GetMetadata()
	e := &model.Error{Code: model.Code(info.GetReason()), Message: md["message"]}
	if v, ok := md["selector"]; ok {
		if s, err := model.ParseSelector(v); err == nil {
			e.WithSelector(s)
		}
	}
	if v, ok := md["facet"]; ok {
		if a, err := model.ParseAddress(v); err == nil {
			e.WithFacet(a)
		}
	}
	if v, ok := md["role"]; ok {
		if r, err := model.ParseRoleID(v); err == nil {
			e.WithRole(r)
		}
	}
	if v, ok := md["account"]; ok {
		if a, err := model.ParseAddress(v); err == nil {
			e.WithAccount(a)
		}
	}
	if v, ok := md["cause"]; ok {
		e.WithCause(errors.New(v))
	}
	return e
}
