package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/watch"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// API and optionally indexes files dropped into the upload directory.
func NewServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		watchDir  bool
		debounceS int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP API.

Clients upload documents or register web pages, poll their index state and
ask questions in any language. Readiness (/api/ready) probes the model
provider and the index backend; Prometheus metrics are served on /metrics.
Set DOCQA_API_KEY to require a bearer token on the /api routes.

Examples:
  docqa serve
  docqa serve --port 9090 --watch
  MODEL_PROVIDER=openai INDEX_BACKEND=qdrant docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := buildApp(ctx, log, appOptions{metrics: prometheus.DefaultRegisterer})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			s := a.settings
			if !cmd.Flags().Changed("host") {
				host = s.ServerHost
			}
			if !cmd.Flags().Changed("port") {
				port = s.ServerPort
			}

			srv, err := server.New(a.assistant, &server.Config{
				Host:         host,
				Port:         port,
				WriteTimeout: 3*s.GenerationTimeout + s.WebTimeout,
				Logger:       log,
				Pingers:      a.pingers,
				RateLimit:    s.RateLimit,
				RateBurst:    s.RateBurst,
				APIKey:       s.APIKey,
				// Multipart framing adds a little on top of the file itself.
				MaxUploadBytes: s.DocumentMaxBytes + 1<<20,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			defer srv.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			if watchDir {
				w, err := watch.New(a.assistant, watch.Config{
					Dir:      s.UploadDir,
					Debounce: secondsOr(debounceS, watch.DefaultDebounce),
					Logger:   log,
				})
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				log.Info("watching upload directory", slog.String("dir", s.UploadDir))
				g.Go(func() error { return w.Run(gctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: DOCQA_PORT)")
	cmd.Flags().BoolVar(&watchDir, "watch", false, "Also index files dropped into the upload directory")
	cmd.Flags().IntVar(&debounceS, "debounce", 0, "Seconds a file must be quiet before it is indexed (default: 2)")

	return cmd
}
