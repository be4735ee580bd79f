package grpcstore

import (
	"context"
	"fmt"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/modelsync/artifact"
)

const (
	mdNamespace   = "x-modelsync-namespace"
	mdName        = "x-modelsync-name"
	mdContentHash = "x-modelsync-content-hash"
)

func identityToStruct(id artifact.Identity) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"namespace":    structpb.NewStringValue(id.Namespace),
		"name":         structpb.NewStringValue(id.Name),
		"content_hash": structpb.NewStringValue(id.ContentHash),
		"commit":       structpb.NewStringValue(id.Commit),
	}}
}

func identityFromStruct(s *structpb.Struct) artifact.Identity {
	f := s.GetFields()
	return artifact.Identity{
		Namespace:   f["namespace"].GetStringValue(),
		Name:        f["name"].GetStringValue(),
		ContentHash: f["content_hash"].GetStringValue(),
		Commit:      f["commit"].GetStringValue(),
	}
}

func outgoingIdentity(ctx context.Context, id artifact.Identity) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		mdNamespace, id.Namespace,
		mdName, id.Name,
		mdContentHash, id.ContentHash,
	)
}

func incomingIdentity(ctx context.Context) (artifact.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return artifact.Identity{}, fmt.Errorf("%w: missing request metadata", artifact.ErrInvalidIdentity)
	}
	get := func(k string) string {
		if v := md.Get(k); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	id := artifact.Identity{
		Namespace:   get(mdNamespace),
		Name:        get(mdName),
		ContentHash: get(mdContentHash),
	}
	return id, id.Validate()
}
