package grpcstore

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

// toStatus converts a store error into a gRPC status for the wire.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCommit):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCommit.Error())
	case errors.Is(err, artifact.ErrInvalidIdentity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, artifact.ErrHashMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a client-side RPC error back into the storage taxonomy.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		if st.Message() == storage.ErrInvalidCommit.Error() {
			return storage.ErrInvalidCommit
		}
		return fmt.Errorf("%w: %s", artifact.ErrInvalidIdentity, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", storage.ErrCorrupt, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", storage.ErrTimeout, st.Message())
	case codes.Unavailable, codes.Canceled, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", storage.ErrUnavailable, st.Message())
	default:
		if strings.Contains(st.Message(), storage.ErrNotFound.Error()) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("registry rpc: %s: %s", st.Code(), st.Message())
	}
}
