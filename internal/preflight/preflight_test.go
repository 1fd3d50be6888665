package preflight_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camliup/internal/preflight"
	"camliup/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		passed bool
		detail string
	}{
		{name: "ok", path: dir, passed: true, detail: "read/write ok"},
		{name: "missing", path: filepath.Join(dir, "nope"), detail: "does not exist"},
		{name: "file", path: file, detail: "is not a directory"},
		{name: "empty", path: "", detail: "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preflight.CheckDirectoryAccess("Data", tt.path)
			if got.Passed != tt.passed || !strings.Contains(got.Detail, tt.detail) {
				t.Fatalf("CheckDirectoryAccess(%q) = %+v", tt.path, got)
			}
		})
	}
}

func TestCheckServerAddress(t *testing.T) {
	if got := preflight.CheckServerAddress("localhost:3179"); !got.Passed || got.Detail != "localhost:3179" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got := preflight.CheckServerAddress("localhost::3179"); got.Passed {
		t.Fatalf("expected failure, got %+v", got)
	}
}

func TestCheckServerReachable(t *testing.T) {
	srv := testsupport.NewBlobServer(t)
	if got := preflight.CheckServerReachable(context.Background(), srv.Address()); !got.Passed {
		t.Fatalf("expected reachable, got %+v", got)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closedAddr := listener.Addr().String()
	listener.Close()
	if got := preflight.CheckServerReachable(context.Background(), closedAddr); got.Passed {
		t.Fatalf("expected unreachable, got %+v", got)
	}
}

func TestRunAllMarksDataDirCritical(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServer("localhost::1", ""))
	results := preflight.RunAll(context.Background(), cfg)
	if _, failed := preflight.FirstCriticalFailure(results); failed {
		t.Fatalf("data dir should pass: %+v", results)
	}
	var sawAddress, sawConnection bool
	for _, r := range results {
		switch r.Name {
		case "Server address":
			sawAddress = true
			if r.Passed {
				t.Fatal("invalid address should fail")
			}
		case "Server connection":
			sawConnection = true
		}
	}
	if !sawAddress || sawConnection {
		t.Fatalf("expected address check without connection check, got %+v", results)
	}

	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "missing")
	if r, failed := preflight.FirstCriticalFailure(preflight.RunAll(context.Background(), cfg)); !failed || r.Name != "Data directory" {
		t.Fatalf("expected critical data dir failure, got %+v", r)
	}
}
