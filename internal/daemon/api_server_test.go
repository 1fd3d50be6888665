package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"camliup/internal/api"
	"camliup/internal/logging"
	"camliup/internal/testsupport"
)

type apiFixture struct {
	daemon *Daemon
	hub    *logging.StreamHub
	http   *httptest.Server
	blobs  *testsupport.BlobServer
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	blobs := testsupport.NewBlobServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithServer(blobs.Address(), ""), testsupport.WithoutAPI())
	store := testsupport.MustOpenStore(t, cfg)
	hub := logging.NewStreamHub(32)
	logPath := filepath.Join(t.TempDir(), "api.log")
	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Stream:           hub,
	})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	d, err := New(cfg, store, logger, hub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	srv := &apiServer{daemon: d}
	httpSrv := httptest.NewServer(srv.routes(token))
	t.Cleanup(httpSrv.Close)
	return &apiFixture{daemon: d, hub: hub, http: httpSrv, blobs: blobs}
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPIFixture(t, "secret")

	if code := f.do(t, http.MethodGet, "/api/status", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/api/status", "wrong", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", code)
	}
	var status api.DaemonStatus
	if code := f.do(t, http.MethodGet, "/api/status", "secret", "", &status); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}
	if !status.Running || status.Upload.State != "idle" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAPIEnqueueAndQueue(t *testing.T) {
	f := newAPIFixture(t, "")
	path := testsupport.WriteString(t, t.TempDir(), "a.txt", "api upload")

	body, _ := json.Marshal(api.EnqueueRequest{Handles: []string{path, "/does/not/exist"}})
	var resp api.EnqueueResponse
	if code := f.do(t, http.MethodPost, "/api/queue", "", string(body), &resp); code != http.StatusOK {
		t.Fatalf("enqueue status %d", code)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp.Results)
	}
	if !resp.Results[0].Queued || resp.Results[0].Error != "" {
		t.Fatalf("first handle should queue: %+v", resp.Results[0])
	}
	if resp.Results[1].Queued || resp.Results[1].Error == "" {
		t.Fatalf("missing handle should report an error: %+v", resp.Results[1])
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var list api.QueueListResponse
		if code := f.do(t, http.MethodGet, "/api/queue", "", "", &list); code != http.StatusOK {
			t.Fatalf("queue status %d", code)
		}
		if len(list.Files) == 0 && !f.daemon.Status().Upload.Uploading() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained: %+v", list.Files)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(f.blobs.Uploads()) != 1 {
		t.Fatalf("expected one upload request, got %d", len(f.blobs.Uploads()))
	}
}

func TestAPIEnqueueRejectsBadBody(t *testing.T) {
	f := newAPIFixture(t, "")
	if code := f.do(t, http.MethodPost, "/api/queue", "", "{", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/api/queue", "", `{"handles":[]}`, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty handles, got %d", code)
	}
}

func TestAPIControlWhenIdle(t *testing.T) {
	f := newAPIFixture(t, "")
	var ctl api.ControlResponse
	if code := f.do(t, http.MethodPost, "/api/pause", "", "", &ctl); code != http.StatusOK {
		t.Fatalf("pause status %d", code)
	}
	if ctl.Changed {
		t.Fatal("pause should report no change when idle")
	}
	if code := f.do(t, http.MethodDelete, "/api/queue", "", "", nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/api/nope", "", "", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestAPIUnavailableAfterStop(t *testing.T) {
	f := newAPIFixture(t, "")
	f.daemon.Stop()
	if code := f.do(t, http.MethodGet, "/api/queue", "", "", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/api/resume", "", "", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestAPILogsTailAndFilter(t *testing.T) {
	f := newAPIFixture(t, "")
	f.hub.Publish(logging.LogEvent{Level: "INFO", Message: "one", Component: "worker"})
	f.hub.Publish(logging.LogEvent{Level: "INFO", Message: "two", Component: "coordinator"})

	var page api.LogStreamResponse
	if code := f.do(t, http.MethodGet, "/api/logs?tail=1&limit=50&component=worker", "", "", &page); code != http.StatusOK {
		t.Fatalf("logs status %d", code)
	}
	if len(page.Events) == 0 {
		t.Fatal("expected worker events")
	}
	for _, evt := range page.Events {
		if evt.Component != "worker" {
			t.Fatalf("filter leaked component %q", evt.Component)
		}
	}
	if page.Next == 0 {
		t.Fatal("expected a cursor")
	}

	var after api.LogStreamResponse
	if code := f.do(t, http.MethodGet, "/api/logs?since="+strconv.FormatUint(page.Next, 10), "", "", &after); code != http.StatusOK {
		t.Fatalf("logs status %d", code)
	}
	if len(after.Events) != 0 || after.Next != page.Next {
		t.Fatalf("expected empty page at cursor, got %+v", after)
	}
}
