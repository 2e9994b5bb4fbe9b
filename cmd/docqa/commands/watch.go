package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/watch"
)

// NewWatchCmd constructs the `docqa watch` command, which indexes every
// supported file that appears in a directory.
func NewWatchCmd() *cobra.Command {
	var debounceS int

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Index documents as they appear in a directory",
		Long: `Watch a directory and index every pdf, txt, csv and docx file written to it.

Files already present are indexed on start. A file is indexed once it has
not changed for the debounce interval, so large copies are read whole.
The directory defaults to the upload directory (DOCQA_UPLOAD_DIR).

Examples:
  docqa watch
  docqa watch ./inbox --debounce 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := buildApp(ctx, log, appOptions{})
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer a.Close()

			dir := a.settings.UploadDir
			if len(args) == 1 {
				dir = args[0]
			}
			w, err := watch.New(a.assistant, watch.Config{
				Dir:      dir,
				Debounce: secondsOr(debounceS, watch.DefaultDebounce),
				Logger:   log,
			})
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			log.Info("watching", slog.String("dir", dir))
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&debounceS, "debounce", 0, "Seconds a file must be quiet before it is indexed (default: 2)")

	return cmd
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
