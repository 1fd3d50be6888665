package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"camliup/internal/blobref"
	"camliup/internal/config"
	"camliup/internal/daemon"
	"camliup/internal/logging"
	"camliup/internal/queue"
	"camliup/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(), logging.NewStreamHub(64))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func waitIdle(t *testing.T, d *daemon.Daemon) daemon.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := d.Status()
		if !st.Upload.Uploading() && st.Upload.QueueSize == 0 {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("daemon did not drain queue: %+v", d.Status().Upload)
	return daemon.Status{}
}

func TestDaemonStartStop(t *testing.T) {
	srv := testsupport.NewBlobServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.Address(), ""), testsupport.WithoutAPI())
	d := newDaemon(t, cfg)

	if _, err := d.Enqueue(context.Background(), "/tmp/x"); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before start, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.LockPath != cfg.LockPath() || status.JournalPath != cfg.JournalPath() {
		t.Fatalf("unexpected paths %+v", status)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight results in status")
	}
	if d.APIAddr() != "" {
		t.Fatalf("api should be disabled, got %q", d.APIAddr())
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to stop")
	}
	if _, err := d.Pause(); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServer("localhost:3179", ""), testsupport.WithoutAPI())
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	second, err := daemon.New(cfg, store, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
}

func TestDaemonUploadsEnqueuedFile(t *testing.T) {
	srv := testsupport.NewBlobServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.Address(), ""), testsupport.WithoutAPI())
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := testsupport.WriteString(t, t.TempDir(), "note.txt", "hello daemon")
	queued, err := d.Enqueue(context.Background(), path)
	if err != nil || !queued {
		t.Fatalf("Enqueue = %v, %v", queued, err)
	}
	st := waitIdle(t, d)
	if st.Upload.BytesSent != int64(len("hello daemon")) {
		t.Fatalf("unexpected bytes sent %d", st.Upload.BytesSent)
	}

	ref, _, err := blobref.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, ok := srv.Blob(ref.String()); !ok {
		t.Fatalf("server missing %s", ref)
	}
	files, entries, err := d.Queue(context.Background())
	if err != nil || len(files) != 0 || len(entries) != 0 {
		t.Fatalf("queue not drained: files=%v entries=%v err=%v", files, entries, err)
	}
}

func TestDaemonResumesJournalOnStart(t *testing.T) {
	srv := testsupport.NewBlobServer(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithServer(srv.Address(), ""),
		testsupport.WithResumeOnStart(true),
		testsupport.WithoutAPI(),
	)
	path := testsupport.WriteString(t, t.TempDir(), "left-over.txt", "from last run")
	ref, size, err := blobref.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Add(context.Background(), queue.File{Ref: ref, Handle: path, Size: size}); err != nil {
		t.Fatalf("journal add: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, d)
	if _, ok := srv.Blob(ref.String()); !ok {
		t.Fatalf("journaled file %s was not uploaded", ref)
	}
}

func TestDaemonKeepsJournalWhenNotResuming(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServer("localhost:3179", ""), testsupport.WithoutAPI())
	path := testsupport.WriteString(t, t.TempDir(), "waiting.txt", "later")
	ref, size, err := blobref.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Add(context.Background(), queue.File{Ref: ref, Handle: path, Size: size}); err != nil {
		t.Fatalf("journal add: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := d.Status()
	if st.Upload.Uploading() || st.Upload.QueueSize != 1 {
		t.Fatalf("expected one idle queued file, got %+v", st.Upload)
	}
}

func TestDaemonStopWithConcurrentEnqueue(t *testing.T) {
	srv := testsupport.NewBlobServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.Address(), ""), testsupport.WithoutAPI())
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := range 8 {
		path := testsupport.WriteString(t, dir, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("content %d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Enqueue(context.Background(), path); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
				t.Errorf("Enqueue %s: %v", path, err)
			}
		}()
	}
	d.Stop()
	wg.Wait()

	if d.Status().Running {
		t.Fatal("expected daemon to stop")
	}
	if _, err := d.Enqueue(context.Background(), filepath.Join(dir, "f0.txt")); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
}
