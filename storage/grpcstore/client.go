// Package grpcstore carries the remote artifact store contract over gRPC.
package grpcstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/storage"
)

// Client implements storage.RemoteStore over the Registry gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client RegistryClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

var _ storage.RemoteStore = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewRegistryClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	if c == nil || c.client == nil {
		return artifact.Identity{}, storage.ErrUnavailable
	}
	if err := id.Validate(); err != nil {
		return artifact.Identity{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Upload(outgoingIdentity(ctx, id), wrapperspb.Bytes(data))
	if err != nil {
		return artifact.Identity{}, c.mapErr(ctx, err)
	}
	if reply.GetValue() == "" {
		return artifact.Identity{}, fmt.Errorf("%w: server returned empty commit", storage.ErrInvalidCommit)
	}
	return id.WithCommit(reply.GetValue()), nil
}

func (c *Client) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	if id.Commit == "" {
		return nil, storage.ErrInvalidCommit
	}
	if c == nil || c.client == nil {
		return nil, storage.ErrUnavailable
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Download(ctx, identityToStruct(id))
	if err != nil {
		return nil, c.mapErr(ctx, err)
	}
	b := reply.GetValue()
	// Content-addressed commits can be checked without trusting the server.
	if _, derr := cid.Decode(id.Commit); derr == nil {
		if err := cidutil.Verify(b, id.Commit); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
		}
	}
	return b, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *Client) mapErr(ctx context.Context, err error) error {
	mapped := mapRPC(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(mapped, storage.ErrTimeout) {
		return fmt.Errorf("%w: %v", storage.ErrTimeout, mapped)
	}
	return mapped
}
