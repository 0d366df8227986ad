package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/facetrouter/storage"
)

// toStatus maps storage errors onto gRPC codes. The sentinel's text travels
// as the status message so mapRPC can restore it.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrInvalidRef):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidRef.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.DataLoss, storage.ErrImmutable.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, known := range []error{
		storage.ErrNotFound,
		storage.ErrInvalidCID,
		storage.ErrInvalidRef,
		storage.ErrCIDMismatch,
		storage.ErrImmutable,
	} {
		if st.Message() == known.Error() {
			return known
		}
	}
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	default:
		return err
	}
}
