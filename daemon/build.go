package daemon

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"xdao.co/modelsync/config"
	"xdao.co/modelsync/metrics"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/oracle/redisledger"
	"xdao.co/modelsync/oracle/sqlledger"
	"xdao.co/modelsync/storage/diskcache"
	"xdao.co/modelsync/storage/registry"
	"xdao.co/modelsync/tracker"
	"xdao.co/modelsync/updater"
)

// OpenLedger opens the oracle backend named in cfg.
func OpenLedger(ctx context.Context, cfg config.OracleConfig) (oracle.Ledger, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return oracle.NewMemory(), func() error { return nil }, nil
	case "sqlite":
		l, err := sqlledger.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return l, l.Close, nil
	case "redis":
		l, err := redisledger.Open(ctx, redisledger.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown oracle backend %q", cfg.Backend)
}

// New wires a Daemon from configuration. Remote backends must already be
// linked into the binary. reg may be nil when metrics are disabled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Daemon, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table, err := cfg.CriteriaTable()
	if err != nil {
		return nil, nil, err
	}

	var m *metrics.Collector
	if reg != nil {
		m = metrics.NewCollector(cfg.Metrics.Namespace, reg)
	}

	cache, err := diskcache.New(cfg.Cache.Dir, diskcache.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	remote, closeRemote, err := cfg.Remote.Open(registry.UsageClient)
	if err != nil {
		return nil, nil, fmt.Errorf("open remote: %w", err)
	}

	ledger, closeLedger, err := OpenLedger(ctx, cfg.Oracle)
	if err != nil {
		_ = closeRemote()
		return nil, nil, err
	}

	tr := tracker.New(logger)
	u := updater.New(ledger, remote, cache, tr, updater.Options{
		Timeout:  cfg.Sync.Timeout,
		Criteria: table,
		Logger:   logger,
		Metrics:  m,
	})

	d := &Daemon{
		Tracker:       tr,
		Updater:       u,
		Cache:         cache,
		Lister:        ledger,
		Publishers:    cfg.Sync.Publishers,
		StatePath:     cfg.State.Path,
		SyncInterval:  cfg.Sync.Interval,
		EvictInterval: cfg.Eviction.Interval,
		Grace:         cfg.Eviction.Grace,
		Concurrency:   cfg.Sync.Concurrency,
		Metrics:       m,
		Logger:        logger,
	}
	closeAll := func() error {
		lerr := closeLedger()
		rerr := closeRemote()
		if lerr != nil {
			return lerr
		}
		return rerr
	}
	return d, closeAll, nil
}
