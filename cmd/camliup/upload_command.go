package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"camliup/internal/logging"
	"camliup/internal/upload"
)

// lockedWriter serializes observer output from the worker goroutine with
// the command's own output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files directly without a daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			handles, err := resolveHandles(args)
			if err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			logger := logging.NewNop()
			if verbose {
				logger, err = logging.New(logging.Options{
					Level:            "debug",
					Format:           cfg.Logging.Format,
					OutputPaths:      []string{"stderr"},
					ErrorOutputPaths: []string{"stderr"},
				})
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
			}

			coord := upload.NewCoordinator(cfg,
				upload.WithLogger(logger),
				upload.WithBatchBytes(cfg.Upload.BatchBytes),
				upload.WithSkipAlreadyHave(cfg.Upload.SkipAlreadyHave),
				upload.WithContext(cmd.Context()),
			)
			coord.Register(upload.ObserverFuncs{
				Line: func(line string) { fmt.Fprintln(out, line) },
			})

			failed := 0
			for _, handle := range handles {
				if _, err := coord.EnqueueUpload(cmd.Context(), handle); err != nil {
					failed++
					fmt.Fprintf(out, "Failed %s: %v\n", handle, err)
				}
			}
			coord.Wait()

			status := coord.Status()
			if status.QueueSize > 0 {
				return fmt.Errorf("%d files not uploaded: %s", status.QueueSize, status.LastError)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be queued", failed, len(handles))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol activity to stderr")
	return cmd
}
