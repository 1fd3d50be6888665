package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"camliup/internal/blobref"
	"camliup/internal/hostport"
	"camliup/internal/logging"
	"camliup/internal/queue"
	"camliup/internal/source"
)

const (
	// DefaultUsername is sent as the basic auth user; the server only checks
	// the password.
	DefaultUsername = "TOD-DUMMY-USER"

	preuploadPath = "/camli/preupload"
	uploadPath    = "/camli/upload"

	// DefaultBatchBytes ends a transfer request once this many content
	// bytes have been written.
	DefaultBatchBytes int64 = 1 << 20

	maxResponseBytes = 1 << 20
)

var (
	// ErrStatus marks responses outside the 2xx range.
	ErrStatus = errors.New("unexpected status")
	// ErrMalformed marks preupload responses that are not a JSON object.
	ErrMalformed = errors.New("malformed response")
)

// Client performs announce and transfer requests for one worker run.
type Client struct {
	server     hostport.HostPort
	password   string
	base       http.RoundTripper
	http       *http.Client
	resolver   source.Resolver
	batchBytes int64
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the base round tripper. Credentials are still added.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.base = rt
		}
	}
}

// WithResolver sets how Transfer opens file handles.
func WithResolver(r source.Resolver) Option {
	return func(c *Client) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithBatchBytes sets the per-request byte threshold. Non-positive values
// keep DefaultBatchBytes.
func WithBatchBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchBytes = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client bound to server with password attached to every
// request. server must be valid.
func NewClient(server hostport.HostPort, password string, opts ...Option) *Client {
	c := &Client{
		server:     server,
		password:   password,
		base:       http.DefaultTransport,
		resolver:   source.Files{},
		batchBytes: DefaultBatchBytes,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &http.Client{Transport: &basicAuthTransport{
		base:     c.base,
		user:     DefaultUsername,
		password: c.password,
	}}
	return c
}

// Server returns the address the client talks to.
func (c *Client) Server() hostport.HostPort { return c.server }

type preuploadResponse struct {
	UploadURL                  string `json:"uploadUrl"`
	MaxUploadSize              int64  `json:"maxUploadSize"`
	UploadURLExpirationSeconds int64  `json:"uploadUrlExpirationSeconds"`
	AlreadyHave                []struct {
		BlobRef string `json:"blobRef"`
		Size    int64  `json:"size"`
	} `json:"alreadyHave"`
}

// Announce posts the content names of files to the preupload endpoint.
func (c *Client) Announce(ctx context.Context, files []queue.File) (*Session, error) {
	form := url.Values{}
	form.Set("camliversion", "1")
	for i, f := range files {
		form.Set("blob"+strconv.Itoa(i+1), f.Ref.String())
	}

	endpoint := c.server.URL(preuploadPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build preupload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preupload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read preupload response: %w", err)
	}
	if !successStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: preupload returned %d", ErrStatus, resp.StatusCode)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: preupload body is not a JSON object", ErrMalformed)
	}
	var body preuploadResponse
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, fmt.Errorf("%w: decode preupload response: %w", ErrMalformed, err)
	}

	uploadURL, err := c.resolveUploadURL(body.UploadURL)
	if err != nil {
		return nil, err
	}

	session := &Session{
		UploadURL:     uploadURL,
		MaxUploadSize: body.MaxUploadSize,
		alreadyHave:   make(map[blobref.Ref]struct{}, len(body.AlreadyHave)),
	}
	for _, have := range body.AlreadyHave {
		ref, err := blobref.Parse(have.BlobRef)
		if err != nil {
			c.logger.Debug("ignoring alreadyHave entry", logging.String(logging.FieldBlob, have.BlobRef), logging.Error(err))
			continue
		}
		session.alreadyHave[ref] = struct{}{}
	}
	c.logger.Debug("preupload accepted",
		logging.Int("announced", len(files)),
		logging.Int("already_have", len(session.alreadyHave)),
		logging.String("upload_url", session.UploadURL),
	)
	return session, nil
}

// resolveUploadURL applies the server-chosen endpoint, which may be relative
// to the server root.
func (c *Client) resolveUploadURL(advertised string) (string, error) {
	advertised = strings.TrimSpace(advertised)
	if advertised == "" {
		return c.server.URL(uploadPath), nil
	}
	ref, err := url.Parse(advertised)
	if err != nil {
		return "", fmt.Errorf("%w: uploadUrl %q: %w", ErrMalformed, advertised, err)
	}
	base, err := url.Parse(c.server.URL("/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// TransferHooks lets the caller take part in a transfer. All fields are
// optional.
type TransferHooks struct {
	// Stop is polled after every chunk and before each file.
	Stop func() bool
	// Skipped is called for files whose source could not be opened.
	Skipped func(queue.File, error)
	// Sent is called with the size of each chunk written.
	Sent func(n int)
}

// Transfer streams files to the session's upload endpoint and returns the
// files fully written in a request the server answered with 2xx.
func (c *Client) Transfer(ctx context.Context, session *Session, files []queue.File, hooks TransferHooks) ([]queue.File, error) {
	if session == nil {
		return nil, errors.New("transfer without session")
	}
	session.resetCounter()

	bw := &BodyWriter{
		Files:    files,
		Resolver: c.resolver,
		Limit:    c.batchBytes,
		Stop:     hooks.Stop,
		Skipped:  hooks.Skipped,
		Sent: func(n int) {
			session.addBytes(int64(n))
			if hooks.Sent != nil {
				hooks.Sent(n)
			}
		},
	}

	pr, pw := io.Pipe()
	type writeResult struct {
		written []queue.File
		err     error
	}
	done := make(chan writeResult, 1)
	go func() {
		written, err := bw.WriteBody(pw)
		_ = pw.CloseWithError(err)
		done <- writeResult{written: written, err: err}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.UploadURL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		<-done
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType())

	resp, doErr := c.http.Do(req)
	// Unblocks the writer if the transport stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	result := <-done

	if doErr == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
	}
	if errors.Is(result.err, ErrStopped) {
		return nil, ErrStopped
	}
	if doErr != nil {
		return nil, fmt.Errorf("upload request: %w", doErr)
	}
	if !successStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: upload returned %d", ErrStatus, resp.StatusCode)
	}
	if result.err != nil {
		return nil, fmt.Errorf("write upload body: %w", result.err)
	}
	c.logger.Debug("upload accepted",
		logging.Int("files", len(result.written)),
		logging.Int64("bytes", session.BytesWritten()),
		logging.Int("status", resp.StatusCode),
	)
	return result.written, nil
}

func successStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

type basicAuthTransport struct {
	base     http.RoundTripper
	user     string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.user, t.password)
	return t.base.RoundTrip(clone)
}
