package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"camliup/internal/hostport"
	"camliup/internal/logging"
	"camliup/internal/protocol"
	"camliup/internal/queue"
)

type worker struct {
	id     string
	coord  *Coordinator
	client *protocol.Client
	logger *slog.Logger

	stop atomic.Bool
	sent atomic.Int64
}

func newWorker(c *Coordinator, hp hostport.HostPort, password string) *worker {
	id := uuid.NewString()
	logger := logging.NewComponentLogger(c.logger, "worker").With(
		logging.String(logging.FieldCorrelationID, id),
		logging.String("server", hp.String()),
	)
	opts := []protocol.Option{
		protocol.WithResolver(c.resolver),
		protocol.WithBatchBytes(c.batchBytes),
		protocol.WithLogger(logger),
	}
	if c.transport != nil {
		opts = append(opts, protocol.WithTransport(c.transport))
	}
	return &worker{
		id:     id,
		coord:  c,
		client: protocol.NewClient(hp, password, opts...),
		logger: logger,
	}
}

func (w *worker) run(ctx context.Context) {
	started := time.Now()
	notifyStatus(w.coord.observerList(), true)
	cycles, cause := w.loop(ctx)
	w.coord.workerEnded(w, cause)

	attrs := []logging.Attr{
		logging.Int("cycles", cycles),
		logging.Int64("bytes", w.sent.Load()),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	}
	switch {
	case cause != nil:
		logging.WarnWithContext(w.logger, "upload worker failed", "upload_failed",
			append(attrs,
				logging.Error(cause),
				logging.String(logging.FieldErrorHint, "check the server is reachable, then resume"),
				logging.String(logging.FieldImpact, "remaining files stay queued"),
			)...,
		)
		w.coord.logLine("upload failed: " + cause.Error())
	case w.stop.Load():
		w.logger.Info("upload worker paused", logging.Args(attrs...)...)
		w.coord.logLine("upload paused")
	default:
		w.logger.Info("upload worker finished", logging.Args(attrs...)...)
		w.coord.logLine("upload queue empty")
	}
}

// loop runs announce/transfer cycles. A nil error with the stop flag set
// means the worker was paused.
func (w *worker) loop(ctx context.Context) (int, error) {
	cycles := 0
	for {
		if w.stop.Load() {
			return cycles, nil
		}
		if err := ctx.Err(); err != nil {
			return cycles, err
		}
		files := w.coord.snapshot()
		if len(files) == 0 {
			return cycles, nil
		}
		cycles++

		session, err := w.client.Announce(ctx, files)
		if err != nil {
			return cycles, fmt.Errorf("announce: %w", err)
		}

		files = w.dropAlreadyStored(ctx, session, files)
		if len(files) == 0 {
			continue
		}
		if w.stop.Load() {
			return cycles, nil
		}

		written, err := w.client.Transfer(ctx, session, files, protocol.TransferHooks{
			Stop:    w.stop.Load,
			Skipped: func(f queue.File, cause error) { w.coord.fileSkipped(ctx, f, cause) },
			Sent:    func(n int) { w.sent.Add(int64(n)) },
		})
		if errors.Is(err, protocol.ErrStopped) {
			return cycles, nil
		}
		if err != nil {
			return cycles, fmt.Errorf("transfer: %w", err)
		}
		for _, f := range written {
			w.coord.fileAcknowledged(ctx, f.Ref)
		}
		w.logger.Debug("cycle complete",
			logging.Int("cycle", cycles),
			logging.Int("acknowledged", len(written)),
			logging.Int64("request_bytes", session.BytesWritten()),
		)
	}
}

func (w *worker) dropAlreadyStored(ctx context.Context, session *protocol.Session, files []queue.File) []queue.File {
	if !w.coord.skipAlreadyHave || session.AlreadyHaveCount() == 0 {
		return files
	}
	remaining := files[:0:0]
	for _, f := range files {
		if session.AlreadyHas(f.Ref) {
			w.logger.Debug("server already has blob", logging.String(logging.FieldBlob, f.Ref.String()))
			w.coord.fileAcknowledged(ctx, f.Ref)
			continue
		}
		remaining = append(remaining, f)
	}
	return remaining
}
