// Package updater brings the local view of one publisher in line with the
// oracle: it fetches the publisher's current record, acquires and verifies
// the artifact bytes, caches them, and only then advances the tracker.
//
// Callers must not run two syncs for the same publisher at once. SyncAll
// guarantees this within a single call; overlapping calls are the driver's
// responsibility.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/criteria"
	"xdao.co/modelsync/metrics"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage"
)

// Tracker is the part of tracker.Tracker the updater needs.
type Tracker interface {
	Get(publisher string) (artifact.PublishRecord, bool)
	RecordUpdate(publisher string, rec artifact.PublishRecord)
}

// Cache is the part of diskcache.Cache the updater needs.
type Cache interface {
	Retrieve(publisher string, id artifact.Identity) ([]byte, error)
	Store(publisher string, id artifact.Identity, data []byte) error
	Touch(publisher string, id artifact.Identity) error
}

type Options struct {
	// Timeout bounds the oracle read and download of one sync. Zero means
	// only the caller's context applies.
	Timeout time.Duration
	// Criteria is consulted by publish height. A nil table skips the check.
	Criteria criteria.Table
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

type Updater struct {
	oracle  oracle.Oracle
	remote  storage.RemoteStore
	cache   Cache
	tracker Tracker
	opts    Options
	logger  *zap.Logger
}

func New(o oracle.Oracle, remote storage.RemoteStore, cache Cache, tr Tracker, opts Options) *Updater {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		oracle:  o,
		remote:  remote,
		cache:   cache,
		tracker: tr,
		opts:    opts,
		logger:  logger.With(zap.String("component", "updater")),
	}
}

// Sync reconciles a single publisher. It never panics on collaborator
// failure; every error is folded into a Failed outcome and the tracker keeps
// its prior value.
func (u *Updater) Sync(ctx context.Context, publisher string) Outcome {
	start := time.Now()
	out := u.sync(ctx, publisher)
	u.opts.Metrics.RecordSync(out.Status.String(), string(out.Reason), time.Since(start))

	switch out.Status {
	case Failed:
		u.logger.Warn("sync failed",
			zap.String("publisher", publisher),
			zap.String("reason", string(out.Reason)),
			zap.Error(out.Err))
	case Updated:
		u.logger.Info("publisher updated", zap.String("publisher", publisher), zap.Duration("took", time.Since(start)))
	}
	return out
}

func (u *Updater) sync(ctx context.Context, publisher string) Outcome {
	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.Timeout)
		defer cancel()
	}

	rec, ok, err := u.oracle.Record(ctx, publisher)
	if err != nil {
		return u.fail(ctx, fmt.Errorf("oracle record: %w", err))
	}
	if !ok {
		return Outcome{Status: Unchanged}
	}

	if cur, has := u.tracker.Get(publisher); has && cur == rec {
		return Outcome{Status: Unchanged}
	}

	id := rec.Identity
	if err := id.Validate(); err != nil {
		return u.fail(ctx, err)
	}

	data, hit := u.fromCache(publisher, id)
	if !hit {
		data, err = u.remote.Download(ctx, id)
		if err != nil {
			return u.fail(ctx, fmt.Errorf("download %s: %w", id, err))
		}
		u.opts.Metrics.RecordDownload(len(data))
		if err := id.Verify(data); err != nil {
			return u.fail(ctx, fmt.Errorf("download %s: %w", id, err))
		}
	}

	if err := u.checkEligible(rec, len(data)); err != nil {
		return u.fail(ctx, err)
	}

	if err := u.persist(publisher, id, data, hit); err != nil {
		return u.fail(ctx, fmt.Errorf("cache store: %w", err))
	}

	u.tracker.RecordUpdate(publisher, rec)
	return Outcome{Status: Updated}
}

// persist makes sure verified bytes are cached before the tracker moves. A
// hit only refreshes the entry, but an entry swept since it was read is
// written again from data.
func (u *Updater) persist(publisher string, id artifact.Identity, data []byte, hit bool) error {
	if hit {
		err := u.cache.Touch(publisher, id)
		if err == nil {
			return nil
		}
		u.logger.Debug("cached artifact gone, rewriting", zap.String("publisher", publisher), zap.Error(err))
	}
	return u.cache.Store(publisher, id, data)
}

// fromCache returns cached bytes only when they still hash to id.
func (u *Updater) fromCache(publisher string, id artifact.Identity) ([]byte, bool) {
	data, err := u.cache.Retrieve(publisher, id)
	if err != nil {
		if !storage.IsNotFound(err) {
			u.logger.Debug("cache entry unusable", zap.String("publisher", publisher), zap.Error(err))
		}
		return nil, false
	}
	if err := id.Verify(data); err != nil {
		u.logger.Warn("cached artifact failed verification", zap.String("publisher", publisher), zap.Error(err))
		return nil, false
	}
	u.opts.Metrics.RecordCacheHit()
	return data, true
}

func (u *Updater) checkEligible(rec artifact.PublishRecord, size int) error {
	if u.opts.Criteria == nil {
		return nil
	}
	c, ok := u.opts.Criteria.For(rec.Height)
	if !ok {
		return fmt.Errorf("%w: no criteria in effect at height %d", criteria.ErrIneligible, rec.Height)
	}
	return c.CheckSize(int64(size))
}

func (u *Updater) fail(ctx context.Context, err error) Outcome {
	reason := Classify(err)
	if (reason == ReasonUnavailable || reason == ReasonInternal) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return Outcome{Status: Failed, Reason: reason, Err: err}
}

// SyncAll syncs every distinct publisher with at most concurrency syncs in
// flight. A failure for one publisher never stops the others.
func (u *Updater) SyncAll(ctx context.Context, publishers []string, concurrency int) map[string]Outcome {
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Outcome, len(publishers))
		g       errgroup.Group
	)
	g.SetLimit(concurrency)

	seen := make(map[string]struct{}, len(publishers))
	for _, p := range publishers {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		g.Go(func() error {
			out := u.Sync(ctx, p)
			mu.Lock()
			results[p] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
