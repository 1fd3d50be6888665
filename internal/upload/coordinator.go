package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"camliup/internal/blobref"
	"camliup/internal/hostport"
	"camliup/internal/logging"
	"camliup/internal/protocol"
	"camliup/internal/queue"
	"camliup/internal/source"
)

// ErrInvalidServer is returned when the configured server address does not
// parse into a usable host and port.
var ErrInvalidServer = errors.New("invalid server address")

// ErrClosed is returned by EnqueueUpload after Shutdown.
var ErrClosed = errors.New("coordinator shut down")

// Settings supplies the server address (host[:port]) and password. It is
// consulted on every enqueue and resume so edits take effect without a
// restart.
type Settings interface {
	ServerSettings() (address, password string)
}

// StaticSettings is a fixed Settings value.
type StaticSettings struct {
	Address  string
	Password string
}

// ServerSettings implements Settings.
func (s StaticSettings) ServerSettings() (string, string) { return s.Address, s.Password }

// Journal persists the pending queue. queue.Store implements it.
type Journal interface {
	Add(ctx context.Context, f queue.File) error
	Remove(ctx context.Context, ref blobref.Ref) error
	List(ctx context.Context) ([]queue.Entry, error)
}

// State is the coordinator's worker state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State      State
	QueueSize  int
	QueueBytes int64
	// BytesSent counts content bytes written by the current or most recent
	// worker run.
	BytesSent int64
	Server    string
	WorkerID  string
	LastError string
}

// Uploading reports whether a worker is running.
func (s Status) Uploading() bool { return s.State == StateRunning }

// Coordinator owns the pending queue and starts at most one worker.
type Coordinator struct {
	settings        Settings
	resolver        source.Resolver
	journal         Journal
	logger          *slog.Logger
	batchBytes      int64
	skipAlreadyHave bool
	transport       http.RoundTripper
	baseCtx         context.Context

	mu           sync.Mutex
	state        State
	pending      queue.Pending
	active       *worker
	last         *worker
	lastErr      string
	closed       bool
	observers    map[int]Observer
	nextObserver int

	wg sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithResolver sets how handles are opened for hashing and transfer.
func WithResolver(r source.Resolver) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithJournal persists queue changes to j.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBatchBytes sets the transfer request byte threshold.
func WithBatchBytes(n int64) Option {
	return func(c *Coordinator) { c.batchBytes = n }
}

// WithSkipAlreadyHave makes workers acknowledge files the server reports as
// stored instead of sending them again.
func WithSkipAlreadyHave(enabled bool) Option {
	return func(c *Coordinator) { c.skipAlreadyHave = enabled }
}

// WithTransport sets the HTTP round tripper workers use.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Coordinator) { c.transport = rt }
}

// WithContext bounds every worker run. Cancelling ctx aborts in-flight
// requests.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// NewCoordinator builds an idle coordinator with an empty queue.
func NewCoordinator(settings Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		settings:   settings,
		resolver:   source.Files{},
		logger:     logging.NewNop(),
		batchBytes: protocol.DefaultBatchBytes,
		baseCtx:    context.Background(),
		observers:  make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "coordinator")
	return c
}

func (c *Coordinator) server() (hostport.HostPort, string, error) {
	address, password := c.settings.ServerSettings()
	hp := hostport.Parse(address)
	if !hp.Valid() {
		return hp, "", fmt.Errorf("%w: %q", ErrInvalidServer, address)
	}
	return hp, password, nil
}

// EnqueueUpload hashes handle and queues it. It returns false without error
// when the same content is already pending. A worker is started when none
// is running.
func (c *Coordinator) EnqueueUpload(ctx context.Context, handle string) (bool, error) {
	hp, password, err := c.server()
	if err != nil {
		logging.WarnWithContext(c.logger, "enqueue rejected", "invalid_server",
			logging.String(logging.FieldHandle, handle),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set server.address to host[:port]"),
			logging.String(logging.FieldImpact, "file was not queued"),
		)
		return false, err
	}

	file, err := c.identify(handle)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	added := c.pending.TryEnqueue(file)
	if added {
		c.journalAdd(ctx, file)
	}
	if added && c.state == StateIdle {
		c.startLocked(hp, password)
	}
	c.mu.Unlock()

	if !added {
		c.logger.Debug("already queued", logging.String(logging.FieldBlob, file.Ref.String()), logging.String(logging.FieldHandle, handle))
		return false, nil
	}
	c.logger.Info("queued",
		logging.String(logging.FieldBlob, file.Ref.String()),
		logging.String(logging.FieldHandle, handle),
		logging.Int64("size", file.Size),
	)
	c.logLine(fmt.Sprintf("queued %s (%s)", file.Ref, handle))
	return true, nil
}

func (c *Coordinator) identify(handle string) (queue.File, error) {
	rc, _, err := c.resolver.Open(handle)
	if err != nil {
		if !errors.Is(err, source.ErrUnreadable) {
			err = fmt.Errorf("%w: %w", source.ErrUnreadable, err)
		}
		return queue.File{}, fmt.Errorf("open %s: %w", handle, err)
	}
	defer rc.Close()
	ref, size, err := blobref.Hash(rc)
	if err != nil {
		return queue.File{}, fmt.Errorf("%w: %s: %w", source.ErrUnreadable, handle, err)
	}
	return queue.File{Ref: ref, Handle: handle, Size: size}, nil
}

// Pause asks the running worker to stop at the next chunk boundary. It
// returns false when no worker is running.
func (c *Coordinator) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.active == nil {
		return false
	}
	c.active.stop.Store(true)
	c.logger.Info("pause requested", logging.String(logging.FieldCorrelationID, c.active.id))
	return true
}

// Resume starts a worker. It returns false when one is already running or
// the server address is invalid.
func (c *Coordinator) Resume() bool {
	c.mu.Lock()
	if c.state == StateRunning || c.closed {
		c.mu.Unlock()
		return false
	}
	hp, password, err := c.server()
	if err != nil {
		c.mu.Unlock()
		logging.WarnWithContext(c.logger, "resume rejected", "invalid_server",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set server.address to host[:port]"),
			logging.String(logging.FieldImpact, "queue stays paused"),
		)
		return false
	}
	c.startLocked(hp, password)
	c.mu.Unlock()
	return true
}

// IsUploading reports whether a worker is running.
func (c *Coordinator) IsUploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning
}

// QueueSize returns the number of pending files.
func (c *Coordinator) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Queue returns a snapshot of the pending files in upload order.
func (c *Coordinator) Queue() []queue.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Snapshot()
}

// Status returns a snapshot of coordinator state.
func (c *Coordinator) Status() Status {
	address, _ := c.settings.ServerSettings()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:      c.state,
		QueueSize:  c.pending.Len(),
		QueueBytes: c.pending.TotalBytes(),
		Server:     address,
		LastError:  c.lastErr,
	}
	if w := c.active; w != nil {
		st.WorkerID = w.id
		st.BytesSent = w.sent.Load()
	} else if c.last != nil {
		st.BytesSent = c.last.sent.Load()
	}
	return st
}

// Wait blocks until no worker goroutine is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown stops the active worker, refuses to start new ones and waits
// for the worker goroutine to return. The pending queue is left intact.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.active != nil {
		c.active.stop.Store(true)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Restore loads journaled files into the queue without starting a worker.
// Entries whose source vanished or changed are dropped from the journal.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	entries, err := c.journal.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list journal: %w", err)
	}

	restored := 0
	for _, entry := range entries {
		file, err := c.identify(entry.Handle)
		if err == nil && file.Ref != entry.Ref {
			err = fmt.Errorf("content changed: now %s", file.Ref)
		}
		if err != nil {
			logging.WarnWithContext(c.logger, "dropping journal entry", "journal_stale",
				logging.String(logging.FieldBlob, entry.Ref.String()),
				logging.String(logging.FieldHandle, entry.Handle),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "enqueue the file again if it still needs uploading"),
				logging.String(logging.FieldImpact, "file removed from queue"),
			)
			if rmErr := c.journal.Remove(ctx, entry.Ref); rmErr != nil {
				return restored, fmt.Errorf("remove stale journal entry: %w", rmErr)
			}
			continue
		}
		c.mu.Lock()
		ok := c.pending.TryEnqueue(file)
		c.mu.Unlock()
		if ok {
			restored++
		}
	}
	if restored > 0 {
		c.logger.Info("restored queue from journal", logging.Int("files", restored))
	}
	return restored, nil
}

// startLocked flips to Running and launches a worker, which announces the
// transition itself so observers see it before the matching Idle. c.mu must
// be held and the coordinator must not be closed.
func (c *Coordinator) startLocked(hp hostport.HostPort, password string) {
	w := newWorker(c, hp, password)
	c.state = StateRunning
	c.active = w
	c.last = w
	c.lastErr = ""
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		w.run(c.baseCtx)
	}()
}

// workerEnded returns to Idle if w is still the active worker.
func (c *Coordinator) workerEnded(w *worker, cause error) {
	c.mu.Lock()
	if c.active != w {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.state = StateIdle
	if cause != nil {
		c.lastErr = cause.Error()
	}
	observers := c.observerListLocked()
	c.mu.Unlock()

	notifyStatus(observers, false)
}

func (c *Coordinator) snapshot() []queue.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Snapshot()
}

// fileAcknowledged removes ref after the server accepted it.
func (c *Coordinator) fileAcknowledged(ctx context.Context, ref blobref.Ref) {
	c.mu.Lock()
	removed := c.pending.Remove(ref)
	if removed {
		c.journalRemove(ctx, ref)
	}
	c.mu.Unlock()
	if removed {
		c.logLine("uploaded " + ref.String())
	}
}

// fileSkipped drops a file whose source could not be opened for transfer.
func (c *Coordinator) fileSkipped(ctx context.Context, f queue.File, cause error) {
	c.mu.Lock()
	removed := c.pending.Remove(f.Ref)
	if removed {
		c.journalRemove(ctx, f.Ref)
	}
	c.mu.Unlock()
	if removed {
		c.logger.Info("skipped unreadable source",
			logging.String(logging.FieldBlob, f.Ref.String()),
			logging.String(logging.FieldHandle, f.Handle),
			logging.Error(cause),
		)
		c.logLine(fmt.Sprintf("skipped %s (%s)", f.Ref, f.Handle))
	}
}

func (c *Coordinator) journalAdd(ctx context.Context, f queue.File) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Add(ctx, f); err != nil {
		logging.WarnWithContext(c.logger, "journal add failed", "journal_write",
			logging.String(logging.FieldBlob, f.Ref.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file will not survive a restart"),
		)
	}
}

func (c *Coordinator) journalRemove(ctx context.Context, ref blobref.Ref) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Remove(ctx, ref); err != nil {
		logging.WarnWithContext(c.logger, "journal remove failed", "journal_write",
			logging.String(logging.FieldBlob, ref.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file may be restored after a restart"),
		)
	}
}
