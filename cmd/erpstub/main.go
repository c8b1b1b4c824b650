// Command erpstub runs an in-memory ERP that speaks the sales order
// contract, for local development against orderbridge.
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpcadapter "orderbridge/internal/adapters/grpc"
	"orderbridge/internal/erpstub"

	"github.com/spf13/cobra"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type options struct {
	addr      string
	node      int64
	firstDoc  int64
	reject    string
	latency   time.Duration
	reflect   bool
	logFormat string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		log.Fatalf("erpstub: %v", err)
	}
}

func newCommand() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "erpstub",
		Short:        "Serve a fake ERP sales order endpoint over gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", envOr("ERPSTUB_ADDR", ":50061"), "listen address")
	f.Int64Var(&opts.node, "node", 1, "snowflake node id for document entries")
	f.Int64Var(&opts.firstDoc, "first-doc-number", 1000, "first document number handed out")
	f.StringVar(&opts.reject, "reject-products", envOr("ERPSTUB_REJECT_PRODUCTS", ""), "comma-separated item codes to reject")
	f.DurationVar(&opts.latency, "latency", 0, "delay added to every answer")
	f.BoolVar(&opts.reflect, "reflection", true, "register gRPC reflection")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	return cmd
}

func run(ctx context.Context, opts options) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if opts.logFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	stub, err := erpstub.New(erpstub.Config{
		NodeID:         opts.node,
		FirstDocNumber: opts.firstDoc,
		RejectProducts: splitList(opts.reject),
		Latency:        opts.latency,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	srv := grpcpkg.NewServer()
	grpcadapter.RegisterERPServer(srv, stub)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if opts.reflect {
		reflection.Register(srv)
	}

	lis, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	logger.Info("erp stub listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		srv.GracefulStop()
		logger.Info("erp stub stopped", "orders_created", len(stub.Created()))
		return nil
	case err := <-errCh:
		return err
	}
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
