package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/server"
	"github.com/54b3r/roomrag-go/internal/tracing"
)

// NewServeCmd constructs the `roomrag serve` command, which starts the HTTP
// API and the background ingestion workers.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the roomrag HTTP API and ingestion workers",
		Long: `Start the roomrag HTTP API.

Uploaded documents are ingested by background workers consuming the
ingestion queue (in-process by default, RabbitMQ with ingestion.queue=amqp).

Examples:
  roomrag serve
  roomrag serve --port 9090
  MODEL_PROVIDER=openai OPENAI_API_KEY=... roomrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log := state.cfg, state.log
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			flush, ok := tracing.Install(tracing.Config{
				Host:      cfg.Tracing.Host,
				PublicKey: cfg.Tracing.PublicKey,
				SecretKey: cfg.Tracing.SecretKey,
			})
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := server.NewMetrics(reg)

			a, err := newApp(ctx, cfg, log, appOptions{})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()
			a.onChat = metrics.ObserveChat
			a.onIngestion = metrics.ObserveIngestion

			worker, err := a.worker(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise ingestion: %w", err)
			}
			orchestrator, err := a.chat(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise chat: %w", err)
			}

			pingers := []server.Pinger{server.NewSQLitePinger(a.db)}
			if a.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(a.qdrant))
			}

			srv, err := server.New(server.Deps{
				Rooms:     a.db,
				Documents: a.docs,
				Chat:      orchestrator,
			}, &server.Config{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				ChatTimeout: cfg.Server.ChatTimeout,
				Logger:      log,
				Pingers:     pingers,
				RateLimit:   cfg.Server.RateLimit,
				RateBurst:   cfg.Server.RateBurst,
				APIKey:      cfg.Server.APIKey,
				Metrics:     metrics,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return worker.Run(gctx) })
			g.Go(func() error { return srv.Start(gctx) })
			if err := g.Wait(); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides server.port)")

	return cmd
}
