// Package daemon drives the two periodic loops: population sync and cache
// eviction. They share only the tracker and the disk cache.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/modelsync/metrics"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage/diskcache"
	"xdao.co/modelsync/tracker"
	"xdao.co/modelsync/updater"
)

type Daemon struct {
	Tracker *tracker.Tracker
	Updater *updater.Updater
	Cache   *diskcache.Cache

	// Lister supplies the population when Publishers is empty.
	Lister     oracle.Lister
	Publishers []string

	StatePath     string
	SyncInterval  time.Duration
	EvictInterval time.Duration
	Grace         time.Duration
	Concurrency   int

	Metrics *metrics.Collector
	Logger  *zap.Logger
	Now     func() time.Time
}

// Restore loads the persisted tracker state. A missing file is a first boot
// and leaves the tracker empty; any other failure is returned.
func (d *Daemon) Restore() error {
	err := d.Tracker.Restore(d.StatePath)
	if errors.Is(err, fs.ErrNotExist) {
		d.log().Info("no tracker state, starting empty", zap.String("path", d.StatePath))
		return nil
	}
	if err != nil {
		return err
	}
	d.log().Info("tracker state restored", zap.String("path", d.StatePath), zap.Int("publishers", d.Tracker.Len()))
	d.Metrics.SetTracked(d.Tracker.Len())
	return nil
}

// population returns the set of publishers to reconcile this cycle.
func (d *Daemon) population(ctx context.Context) ([]string, error) {
	if len(d.Publishers) > 0 {
		return d.Publishers, nil
	}
	if d.Lister == nil {
		return nil, errors.New("daemon: no publishers configured and no lister")
	}
	return d.Lister.Publishers(ctx)
}

// SyncOnce runs one reconciliation cycle: population, reconcile, sync every
// publisher, persist.
func (d *Daemon) SyncOnce(ctx context.Context) (map[string]updater.Outcome, error) {
	pubs, err := d.population(ctx)
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}

	current := make(map[string]struct{}, len(pubs))
	for _, p := range pubs {
		current[p] = struct{}{}
	}
	d.Tracker.ReconcileTrackedSet(current)

	results := d.Updater.SyncAll(ctx, pubs, d.Concurrency)

	var updated, failed int
	for _, out := range results {
		switch out.Status {
		case updater.Updated:
			updated++
		case updater.Failed:
			failed++
		}
	}

	if err := d.Tracker.Persist(d.StatePath); err != nil {
		return results, fmt.Errorf("persist tracker: %w", err)
	}
	d.Metrics.SetTracked(d.Tracker.Len())
	d.Metrics.MarkCycle("sync", d.now())
	d.log().Info("sync cycle complete",
		zap.Int("publishers", len(results)),
		zap.Int("updated", updated),
		zap.Int("failed", failed))
	return results, nil
}

// EvictOnce sweeps the cache against the tracker's current retention set.
func (d *Daemon) EvictOnce() (diskcache.Stats, error) {
	st, err := d.Cache.Evict(d.Tracker.RetentionSet(), d.now().Add(-d.Grace))
	if err != nil {
		return st, err
	}
	d.Metrics.RecordEviction(st.Kept, st.Recent, st.Removed, st.Failed)
	d.Metrics.MarkCycle("evict", d.now())
	d.log().Info("eviction sweep complete",
		zap.Int("kept", st.Kept),
		zap.Int("recent", st.Recent),
		zap.Int("removed", st.Removed),
		zap.Int("failed", st.Failed))
	return st, nil
}

// RunSync runs SyncOnce immediately and then every SyncInterval until ctx
// is done. Cycle errors are logged; the loop keeps going.
func (d *Daemon) RunSync(ctx context.Context) error {
	return d.loop(ctx, "sync", d.SyncInterval, func(ctx context.Context) error {
		_, err := d.SyncOnce(ctx)
		return err
	})
}

func (d *Daemon) RunEviction(ctx context.Context) error {
	return d.loop(ctx, "evict", d.EvictInterval, func(context.Context) error {
		_, err := d.EvictOnce()
		return err
	})
}

// Run runs both loops until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.RunSync(ctx) })
	g.Go(func() error { return d.RunEviction(ctx) })
	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context, name string, every time.Duration, cycle func(context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("daemon: %s interval must be positive", name)
	}
	logger := d.log().With(zap.String("loop", name))
	logger.Info("loop started", zap.Duration("interval", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if err := cycle(ctx); err != nil && ctx.Err() == nil {
			logger.Error("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil
		case <-t.C:
		}
	}
}

func (d *Daemon) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Daemon) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.With(zap.String("component", "daemon"))
}
