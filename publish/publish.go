// Package publish is the upload side: it pushes an artifact to the remote
// registry and records the publisher's signed claim on the ledger.
package publish

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/criteria"
	"xdao.co/modelsync/keys"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage"
)

type Publisher struct {
	Remote storage.RemoteStore
	Ledger oracle.Appender
	Signer keys.Signer

	// Criteria, when set, refuses artifacts that would be ineligible at the
	// publish height before anything is uploaded.
	Criteria criteria.Table
	Logger   *zap.Logger
}

// Publish uploads data as namespace/name and appends a signed commitment at
// height. The returned record is what the oracle will report for the
// publisher afterwards.
func (p *Publisher) Publish(ctx context.Context, namespace, name string, data []byte, height uint64) (artifact.PublishRecord, error) {
	if p.Remote == nil || p.Ledger == nil || p.Signer == nil {
		return artifact.PublishRecord{}, fmt.Errorf("publish: remote, ledger and signer are required")
	}
	id := artifact.NewIdentity(namespace, name, data)
	if err := id.Validate(); err != nil {
		return artifact.PublishRecord{}, err
	}
	if p.Criteria != nil {
		c, ok := p.Criteria.For(height)
		if !ok {
			return artifact.PublishRecord{}, fmt.Errorf("%w: no criteria in effect at height %d", criteria.ErrIneligible, height)
		}
		if err := c.CheckSize(int64(len(data))); err != nil {
			return artifact.PublishRecord{}, err
		}
	}

	uploaded, err := p.Remote.Upload(ctx, id, data)
	if err != nil {
		return artifact.PublishRecord{}, fmt.Errorf("upload %s: %w", id.Repo(), err)
	}
	if uploaded.Commit == "" {
		return artifact.PublishRecord{}, fmt.Errorf("upload %s: %w", id.Repo(), storage.ErrInvalidCommit)
	}

	c, err := oracle.Sign(p.Signer, uploaded)
	if err != nil {
		return artifact.PublishRecord{}, fmt.Errorf("sign commitment: %w", err)
	}
	if err := p.Ledger.Append(ctx, c, height); err != nil {
		return artifact.PublishRecord{}, fmt.Errorf("append commitment: %w", err)
	}

	p.log().Info("published",
		zap.String("publisher", c.Publisher),
		zap.String("artifact", uploaded.Repo()),
		zap.String("commit", uploaded.Commit),
		zap.Uint64("height", height))
	return artifact.PublishRecord{Identity: uploaded, Height: height}, nil
}

func (p *Publisher) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.With(zap.String("component", "publish"))
}
