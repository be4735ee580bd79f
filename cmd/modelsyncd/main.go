package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/modelsync/config"
	"xdao.co/modelsync/daemon"

	_ "xdao.co/modelsync/storage/dirstore"
	_ "xdao.co/modelsync/storage/grpcstore"
	_ "xdao.co/modelsync/storage/ipfsstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("modelsyncd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (YAML); MODELSYNC_* env vars override it")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	d, closeFn, err := daemon.New(ctx, cfg, logger, registerer)
	if err != nil {
		logger.Error("build daemon", zap.Error(err))
		return 1
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	// A state file that exists but cannot be read is fatal: starting empty
	// would let the first eviction sweep delete everything.
	if err := d.Restore(); err != nil {
		logger.Error("restore tracker state", zap.Error(err))
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	if reg != nil {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr, reg, logger) })
	}

	logger.Info("modelsyncd started",
		zap.Duration("sync_interval", cfg.Sync.Interval),
		zap.Duration("evict_interval", cfg.Eviction.Interval),
		zap.String("cache_dir", cfg.Cache.Dir),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("modelsyncd stopped", zap.Error(err))
		return 1
	}
	logger.Info("modelsyncd stopped")
	return 0
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	logger.Info("metrics server started", zap.String("addr", lis.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
