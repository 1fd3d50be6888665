package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"camliup/internal/config"
	"camliup/internal/logging"
	"camliup/internal/preflight"
	"camliup/internal/queue"
	"camliup/internal/upload"
)

// ErrNotRunning is returned by operations that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// Daemon owns the upload coordinator and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	hub    *logging.StreamHub

	lockPath string
	lock     *flock.Flock

	// coordOpts are appended to the coordinator options built from cfg.
	coordOpts []upload.Option

	mu       sync.Mutex
	coord    *upload.Coordinator
	observer int
	api      *apiServer
	checks   []preflight.Result

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	Upload      upload.Status
	Checks      []preflight.Result
	JournalPath string
	LockPath    string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithCoordinatorOptions passes extra options to the upload coordinator.
func WithCoordinatorOptions(opts ...upload.Option) Option {
	return func(d *Daemon) {
		d.coordOpts = append(d.coordOpts, opts...)
	}
}

// New constructs a daemon with initialized dependencies. hub may be nil.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *logging.StreamHub, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, restores the journal, and serves the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another camliup daemon instance is already running")
	}

	checks := preflight.RunAll(ctx, d.cfg)
	if failed, ok := preflight.FirstCriticalFailure(checks); ok {
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight %s: %s", failed.Name, failed.Detail)
	}
	for _, check := range checks {
		if check.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "uploads may fail until resolved"),
			logging.String(logging.FieldErrorHint, "camliup config validate"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	coord := d.newCoordinator(runCtx)

	restored, err := coord.Restore(runCtx)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal restore incomplete", "journal_restore_failed",
			logging.Error(err),
			logging.Int("restored", restored),
			logging.String(logging.FieldImpact, "some queued files may need to be added again"),
		)
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = api.start(runCtx)
	}
	if err != nil {
		cancel()
		coord.Shutdown()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.mu.Lock()
	d.coord = coord
	d.api = api
	d.checks = checks
	d.ctx, d.cancel = runCtx, cancel
	d.mu.Unlock()
	d.running.Store(true)

	if d.cfg.Upload.ResumeOnStart && restored > 0 {
		coord.Resume()
	}
	d.logger.Info("camliup daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("restored", restored),
		logging.String("server", d.cfg.Server.Address),
	)
	return nil
}

func (d *Daemon) newCoordinator(ctx context.Context) *upload.Coordinator {
	opts := []upload.Option{
		upload.WithJournal(d.store),
		upload.WithLogger(d.logger),
		upload.WithBatchBytes(d.cfg.Upload.BatchBytes),
		upload.WithSkipAlreadyHave(d.cfg.Upload.SkipAlreadyHave),
		upload.WithContext(ctx),
	}
	coord := upload.NewCoordinator(d.cfg, append(opts, d.coordOpts...)...)
	d.observer = coord.Register(upload.ObserverFuncs{
		Status: func(uploading bool) {
			if uploading {
				d.logger.Debug("uploads active")
			} else {
				d.logger.Debug("uploads idle")
			}
		},
	})
	return coord
}

// Stop cancels in-flight uploads and releases the daemon lock. The queue
// stays journaled for the next start.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.mu.Lock()
	coord, api, cancel := d.coord, d.api, d.cancel
	d.coord, d.api, d.cancel, d.ctx = nil, nil, nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if coord != nil {
		coord.Shutdown()
		coord.Unregister(d.observer)
	}
	api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("camliup daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) coordinator() (*upload.Coordinator, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.coord == nil {
		return nil, ErrNotRunning
	}
	return d.coord, nil
}

// Enqueue queues a single handle for upload.
func (d *Daemon) Enqueue(ctx context.Context, handle string) (bool, error) {
	coord, err := d.coordinator()
	if err != nil {
		return false, err
	}
	queued, err := coord.EnqueueUpload(ctx, handle)
	if errors.Is(err, upload.ErrClosed) {
		return false, ErrNotRunning
	}
	return queued, err
}

// Pause stops the running worker at the next chunk boundary.
func (d *Daemon) Pause() (bool, error) {
	coord, err := d.coordinator()
	if err != nil {
		return false, err
	}
	return coord.Pause(), nil
}

// Resume starts a worker if none is running.
func (d *Daemon) Resume() (bool, error) {
	coord, err := d.coordinator()
	if err != nil {
		return false, err
	}
	return coord.Resume(), nil
}

// Queue returns pending files in upload order along with their journal entries.
func (d *Daemon) Queue(ctx context.Context) ([]queue.File, []queue.Entry, error) {
	coord, err := d.coordinator()
	if err != nil {
		return nil, nil, err
	}
	files := coord.Queue()
	entries, err := d.store.List(ctx)
	if err != nil {
		return files, nil, fmt.Errorf("list journal: %w", err)
	}
	return files, entries, nil
}

// APIAddr returns the HTTP API listen address, or "" when disabled.
func (d *Daemon) APIAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.addr()
}

// LogStream returns the in-memory log hub, or nil.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		JournalPath: d.store.Path(),
		LockPath:    d.lockPath,
	}
	d.mu.Lock()
	coord := d.coord
	st.Checks = append(st.Checks, d.checks...)
	d.mu.Unlock()
	if coord != nil {
		st.Upload = coord.Status()
	}
	return st
}
