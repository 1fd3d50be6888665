package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"strings"
	"testing"

	"camliup/internal/blobref"
	"camliup/internal/protocol"
	"camliup/internal/queue"
	"camliup/internal/source"
)

// memResolver serves handles from memory and can run a hook on each open.
type memResolver struct {
	content map[string]string
	onOpen  func(handle string)
}

func (m *memResolver) Open(handle string) (io.ReadCloser, int64, error) {
	if m.onOpen != nil {
		m.onOpen(handle)
	}
	data, ok := m.content[handle]
	if !ok {
		return nil, -1, source.ErrUnreadable
	}
	return io.NopCloser(strings.NewReader(data)), int64(len(data)), nil
}

func memFile(t *testing.T, handle, content string) queue.File {
	t.Helper()
	ref, size, err := blobref.Hash(strings.NewReader(content))
	if err != nil {
		t.Fatalf("hash %s: %v", handle, err)
	}
	return queue.File{Ref: ref, Handle: handle, Size: size}
}

func TestBodyWriterWireFormat(t *testing.T) {
	f := memFile(t, "a", "hello")
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files:    []queue.File{f},
		Resolver: &memResolver{content: map[string]string{"a": "hello"}},
	}

	written, err := bw.WriteBody(&out)
	if err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if len(written) != 1 || written[0].Ref != f.Ref {
		t.Fatalf("unexpected written files %+v", written)
	}

	want := "\r\n--" + protocol.Boundary + "\r\n" +
		"Content-Disposition: form-data; name=" + f.Ref.String() + "\r\n\r\n" +
		"hello" +
		"\r\n--" + protocol.Boundary + "--\r\n"
	if out.String() != want {
		t.Fatalf("body mismatch\n got: %q\nwant: %q", out.String(), want)
	}
}

func TestBodyWriterParsesAsMultipart(t *testing.T) {
	a := memFile(t, "a", "first file")
	b := memFile(t, "b", strings.Repeat("x", 2500))
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files: []queue.File{a, b},
		Resolver: &memResolver{content: map[string]string{
			"a": "first file",
			"b": strings.Repeat("x", 2500),
		}},
	}
	if _, err := bw.WriteBody(&out); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}

	reader := multipart.NewReader(&out, protocol.Boundary)
	var names []string
	var sizes []int
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		names = append(names, part.FormName())
		sizes = append(sizes, len(data))
	}
	if len(names) != 2 || names[0] != a.Ref.String() || names[1] != b.Ref.String() {
		t.Fatalf("unexpected part names %v", names)
	}
	if sizes[0] != 10 || sizes[1] != 2500 {
		t.Fatalf("unexpected part sizes %v", sizes)
	}
}

func TestBodyWriterSkipsUnopenableSource(t *testing.T) {
	missing := memFile(t, "missing", "gone")
	present := memFile(t, "present", "here")
	var skipped []queue.File
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files:    []queue.File{missing, present},
		Resolver: &memResolver{content: map[string]string{"present": "here"}},
		Skipped: func(f queue.File, err error) {
			if !errors.Is(err, source.ErrUnreadable) {
				t.Errorf("unexpected skip error %v", err)
			}
			skipped = append(skipped, f)
		},
	}

	written, err := bw.WriteBody(&out)
	if err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if len(skipped) != 1 || skipped[0].Ref != missing.Ref {
		t.Fatalf("expected missing file skipped, got %+v", skipped)
	}
	if len(written) != 1 || written[0].Ref != present.Ref {
		t.Fatalf("expected only present file written, got %+v", written)
	}
	if strings.Contains(out.String(), missing.Ref.String()) {
		t.Fatal("skipped file must not get a part")
	}
}

func TestBodyWriterStopsAfterByteLimit(t *testing.T) {
	content := map[string]string{}
	var files []queue.File
	for _, h := range []string{"a", "b", "c"} {
		data := strings.Repeat(h, 600)
		content[h] = data
		files = append(files, memFile(t, h, data))
	}
	var out bytes.Buffer
	bw := &protocol.BodyWriter{Files: files, Resolver: &memResolver{content: content}, Limit: 1000}

	written, err := bw.WriteBody(&out)
	if err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected two files before threshold, got %d", len(written))
	}
	if !strings.HasSuffix(out.String(), "\r\n--"+protocol.Boundary+"--\r\n") {
		t.Fatal("expected end boundary after threshold")
	}
	if strings.Contains(out.String(), files[2].Ref.String()) {
		t.Fatal("third file must wait for the next request")
	}
}

func TestBodyWriterStopMidFileOmitsEndBoundary(t *testing.T) {
	f := memFile(t, "big", strings.Repeat("z", 5000))
	chunks := 0
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files:    []queue.File{f},
		Resolver: &memResolver{content: map[string]string{"big": strings.Repeat("z", 5000)}},
		Sent:     func(int) { chunks++ },
		Stop:     func() bool { return chunks >= 2 },
	}

	written, err := bw.WriteBody(&out)
	if !errors.Is(err, protocol.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("partially written file must not count, got %+v", written)
	}
	if strings.Contains(out.String(), protocol.Boundary+"--") {
		t.Fatal("stopped body must not carry an end boundary")
	}
	if chunks != 2 {
		t.Fatalf("expected writer to stop after second chunk, wrote %d", chunks)
	}
}

func TestBodyWriterStopBetweenFilesClosesBody(t *testing.T) {
	first := memFile(t, "first", "0123456789")
	second := memFile(t, "second", "abcdefghij")
	stop := false
	resolver := &memResolver{
		content: map[string]string{"first": "0123456789", "second": "abcdefghij"},
		onOpen: func(handle string) {
			if handle == "second" {
				stop = true
			}
		},
	}
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files:    []queue.File{first, second},
		Resolver: resolver,
		Stop:     func() bool { return stop },
	}

	written, err := bw.WriteBody(&out)
	if err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if len(written) != 1 || written[0].Ref != first.Ref {
		t.Fatalf("expected only first file written, got %+v", written)
	}
	if strings.Contains(out.String(), second.Ref.String()) {
		t.Fatal("second file must not get a part")
	}
	if !strings.HasSuffix(out.String(), "\r\n--"+protocol.Boundary+"--\r\n") {
		t.Fatal("expected end boundary after stop between files")
	}
}

func TestBodyWriterStopOnLastChunkKeepsFile(t *testing.T) {
	a := memFile(t, "a", "0123456789")
	b := memFile(t, "b", "abcdef")
	var sent int
	stop := false
	var out bytes.Buffer
	bw := &protocol.BodyWriter{
		Files:    []queue.File{a, b},
		Resolver: &memResolver{content: map[string]string{"a": "0123456789", "b": "abcdef"}},
		Sent: func(n int) {
			sent += n
			if sent >= 10 {
				stop = true
			}
		},
		Stop: func() bool { return stop },
	}

	written, err := bw.WriteBody(&out)
	if err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if len(written) != 1 || written[0].Ref != a.Ref {
		t.Fatalf("fully sent file must be reported, got %+v", written)
	}
	if strings.Contains(out.String(), b.Ref.String()) {
		t.Fatal("second file must not get a part")
	}
	if !strings.HasSuffix(out.String(), "\r\n--"+protocol.Boundary+"--\r\n") {
		t.Fatal("expected end boundary after the completed file")
	}
}

func TestBodyWriterReadsFiles(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/blob.bin"
	if err := os.WriteFile(path, []byte("on disk"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ref, size, err := blobref.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	var out bytes.Buffer
	bw := &protocol.BodyWriter{Files: []queue.File{{Ref: ref, Handle: path, Size: size}}}
	if _, err := bw.WriteBody(&out); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if !strings.Contains(out.String(), "\r\n\r\non disk\r\n") {
		t.Fatalf("file content missing from body %q", out.String())
	}
}
