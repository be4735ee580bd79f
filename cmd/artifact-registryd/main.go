package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/modelsync/config"
	"xdao.co/modelsync/storage/grpcstore"
	"xdao.co/modelsync/storage/registry"

	_ "xdao.co/modelsync/storage/dirstore"
	_ "xdao.co/modelsync/storage/ipfsstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run serves until ctx is cancelled. ready, when non-nil, receives the bound
// listen address once the server accepts connections.
func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer, ready chan<- string) int {
	fs := flag.NewFlagSet("artifact-registryd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "dir", "storage backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsgBytes := fs.Int("max-msg-bytes", 64<<20, "Max gRPC message size in bytes (send+recv)")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")

	flags := registry.RegisterFlags(fs, registry.UsageServer)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range registry.List(registry.UsageServer) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := config.LogConfig{Level: *logLevel, Format: "json"}.BuildLogger()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	store, closeFn, err := registry.Open(*backend, registry.UsageServer, flags.Config(*backend))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	var opts []grpc.ServerOption
	if *maxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(*maxMsgBytes), grpc.MaxSendMsgSize(*maxMsgBytes))
	}
	s := grpc.NewServer(opts...)
	grpcstore.RegisterRegistryServer(s, &grpcstore.Server{
		Store:  store,
		Logger: logger.With(zap.String("component", "registry-server")),
	})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("artifact-registryd listening", zap.String("addr", lis.Addr().String()), zap.String("backend", *backend))
	if ready != nil {
		ready <- lis.Addr().String()
	}
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}
