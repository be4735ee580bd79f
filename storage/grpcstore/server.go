package grpcstore

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/modelsync/storage"
)

// Server exposes a storage.RemoteStore over the Registry gRPC service.
type Server struct {
	UnimplementedRegistryServer
	Store  storage.RemoteStore
	Logger *zap.Logger
}

func (s *Server) Upload(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := incomingIdentity(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	// The server refuses bytes that do not match the claimed content hash.
	if err := id.Verify(in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	got, err := s.Store.Upload(ctx, id, in.GetValue())
	if err != nil {
		s.log().Warn("upload failed", zap.String("artifact", id.Repo()), zap.Error(err))
		return nil, toStatus(err)
	}
	s.log().Debug("uploaded", zap.String("artifact", id.Repo()), zap.String("commit", got.Commit), zap.Int("bytes", len(in.GetValue())))
	return wrapperspb.String(got.Commit), nil
}

func (s *Server) Download(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id := identityFromStruct(in)
	b, err := s.Store.Download(ctx, id)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.log().Warn("download failed", zap.String("artifact", id.Repo()), zap.String("commit", id.Commit), zap.Error(err))
		}
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
