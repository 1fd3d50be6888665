package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"camliup/internal/api"
	"camliup/internal/daemon"
	"camliup/internal/logging"
)

const defaultTailLimit = 200

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. onStop, when
// set, runs after a client asks the daemon to stop.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, onStop func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx, onStop: onStop}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// Close stops the server, drops open client connections, and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	onStop func()
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	if len(req.Handles) == 0 {
		return errors.New("no handles given")
	}
	resp.Results = make([]EnqueueResult, 0, len(req.Handles))
	for _, handle := range req.Handles {
		queued, err := s.daemon.Enqueue(s.ctx, handle)
		if errors.Is(err, daemon.ErrNotRunning) {
			return err
		}
		result := EnqueueResult{Handle: handle, Queued: queued}
		if err != nil {
			result.Error = err.Error()
		}
		resp.Results = append(resp.Results, result)
	}
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	paused, err := s.daemon.Pause()
	if err != nil {
		return err
	}
	resp.Paused = paused
	if paused {
		resp.Message = "pause requested"
	} else {
		resp.Message = "not uploading"
	}
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	resumed, err := s.daemon.Resume()
	if err != nil {
		return err
	}
	resp.Resumed = resumed
	if resumed {
		resp.Message = "upload started"
	} else {
		resp.Message = "already uploading or server address invalid"
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.Stop()
	resp.Stopped = true
	if s.onStop != nil {
		go s.onStop()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status()
	resp.Running = st.Running
	resp.PID = st.PID
	resp.JournalPath = st.JournalPath
	resp.LockPath = st.LockPath
	resp.APIAddress = s.daemon.APIAddr()
	resp.Upload = api.FromUploadStatus(st.Upload)
	resp.Checks = api.FromCheckResults(st.Checks)
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	files, entries, err := s.daemon.Queue(s.ctx)
	if errors.Is(err, daemon.ErrNotRunning) {
		return err
	}
	if err != nil {
		s.logger.Warn("queue journal read failed", logging.Error(err))
	}
	resp.Files = api.FromFiles(files, api.QueuedAtIndex(entries))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		resp.Next = req.Since
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTailLimit
	}

	if req.Since == 0 && !req.Follow {
		events, next := hub.Tail(limit)
		resp.Lines = renderLines(events)
		resp.Next = next
		return nil
	}

	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, req.Since, limit, req.Follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = renderLines(events)
	resp.Next = next
	return nil
}

func renderLines(events []logging.LogEvent) []string {
	lines := make([]string, 0, len(events))
	for _, evt := range events {
		lines = append(lines, evt.Line())
	}
	return lines
}
