package testsupport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// Part is one multipart section the fake server received.
type Part struct {
	Name string
	Data []byte
}

// UploadRequest is one upload POST as the fake server saw it. Complete is
// false when the body ended before the closing boundary.
type UploadRequest struct {
	Parts    []Part
	Complete bool
}

// BlobServer is an in-process stand-in for the blob server's preupload and
// upload endpoints.
type BlobServer struct {
	*httptest.Server

	// Password, when set, is required as the basic auth password.
	Password string

	mu              sync.Mutex
	announces       []url.Values
	uploads         []UploadRequest
	stored          map[string][]byte
	preuploadStatus int
	uploadStatus    int
	preuploadBody   string
	advertiseUpload string
	authUsers       []string
	onPreupload     func()
}

// NewBlobServer starts a fake blob server and registers cleanup.
func NewBlobServer(t testing.TB) *BlobServer {
	t.Helper()
	s := &BlobServer{stored: make(map[string][]byte)}

	router := mux.NewRouter()
	router.HandleFunc("/camli/preupload", s.handlePreupload).Methods(http.MethodPost)
	router.HandleFunc("/camli/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/alt/upload", s.handleUpload).Methods(http.MethodPost)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// Address returns host:port for the server, suitable for config.
func (s *BlobServer) Address() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// FailPreupload makes the preupload endpoint answer with status.
func (s *BlobServer) FailPreupload(status int) {
	s.mu.Lock()
	s.preuploadStatus = status
	s.mu.Unlock()
}

// FailUpload makes the upload endpoint answer with status after reading the body.
func (s *BlobServer) FailUpload(status int) {
	s.mu.Lock()
	s.uploadStatus = status
	s.mu.Unlock()
}

// PreuploadBody replaces the JSON preupload response with raw.
func (s *BlobServer) PreuploadBody(raw string) {
	s.mu.Lock()
	s.preuploadBody = raw
	s.mu.Unlock()
}

// AdvertiseUploadURL sets the uploadUrl returned from preupload. Empty
// omits the field.
func (s *BlobServer) AdvertiseUploadURL(u string) {
	s.mu.Lock()
	s.advertiseUpload = u
	s.mu.Unlock()
}

// OnPreupload runs fn inside every preupload request before it answers.
func (s *BlobServer) OnPreupload(fn func()) {
	s.mu.Lock()
	s.onPreupload = fn
	s.mu.Unlock()
}

// Store pre-seeds a blob so preupload lists it in alreadyHave.
func (s *BlobServer) Store(name string, data []byte) {
	s.mu.Lock()
	s.stored[name] = append([]byte(nil), data...)
	s.mu.Unlock()
}

// Announces returns the preupload forms received so far.
func (s *BlobServer) Announces() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.announces...)
}

// Uploads returns the upload requests received so far.
func (s *BlobServer) Uploads() []UploadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadRequest(nil), s.uploads...)
}

// Blob returns stored bytes for a content name.
func (s *BlobServer) Blob(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.stored[name]
	return data, ok
}

// AuthUsers returns the basic auth user names seen, one per request.
func (s *BlobServer) AuthUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authUsers...)
}

func (s *BlobServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	user, password, ok := r.BasicAuth()
	s.mu.Lock()
	if ok {
		s.authUsers = append(s.authUsers, user)
	}
	want := s.Password
	s.mu.Unlock()
	if want == "" {
		return true
	}
	if !ok || password != want {
		w.Header().Set("WWW-Authenticate", `Basic realm="camlistored"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *BlobServer) handlePreupload(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.announces = append(s.announces, r.PostForm)
	status := s.preuploadStatus
	rawBody := s.preuploadBody
	advertise := s.advertiseUpload
	hook := s.onPreupload
	var have []map[string]any
	for i := 1; ; i++ {
		name := r.PostForm.Get("blob" + strconv.Itoa(i))
		if name == "" {
			break
		}
		if data, ok := s.stored[name]; ok {
			have = append(have, map[string]any{"blobRef": name, "size": len(data)})
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if status != 0 {
		http.Error(w, "preupload failed", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if rawBody != "" {
		_, _ = io.WriteString(w, rawBody)
		return
	}
	resp := map[string]any{
		"maxUploadSize":              2147483647,
		"alreadyHave":                have,
		"uploadUrlExpirationSeconds": 86400,
	}
	if advertise != "" {
		resp["uploadUrl"] = advertise
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *BlobServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req UploadRequest
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			req.Complete = true
			break
		}
		if err != nil {
			break
		}
		data, err := io.ReadAll(part)
		if err != nil {
			break
		}
		req.Parts = append(req.Parts, Part{Name: part.FormName(), Data: data})
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, req)
	status := s.uploadStatus
	if req.Complete && status == 0 {
		for _, p := range req.Parts {
			s.stored[p.Name] = p.Data
		}
	}
	s.mu.Unlock()

	if !req.Complete {
		http.Error(w, "truncated upload", http.StatusBadRequest)
		return
	}
	if status != 0 {
		http.Error(w, "upload failed", status)
		return
	}
	received := make([]string, 0, len(req.Parts))
	for _, p := range req.Parts {
		received = append(received, p.Name)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"received": received})
}
