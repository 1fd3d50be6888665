package protocol

import (
	"errors"
	"fmt"
	"io"

	"camliup/internal/queue"
	"camliup/internal/source"
)

// Boundary separates parts of every upload body.
const Boundary = "TODOLKSDJFLKSDJFLdslkjfjf23ojf0j30dm32LFDSJFLKSDJF"

const chunkSize = 1024

// ErrStopped is returned when the stop flag was raised in the middle of a
// file. The body is left without its closing boundary.
var ErrStopped = errors.New("upload stopped")

// ContentType is the request header value matching Boundary.
func ContentType() string {
	return "multipart/form-data; boundary=" + Boundary
}

// BodyWriter generates a multipart upload body for a queue snapshot.
type BodyWriter struct {
	Files    []queue.File
	Resolver source.Resolver
	// Limit ends the body once more than Limit content bytes were written.
	// Zero or negative means DefaultBatchBytes.
	Limit   int64
	Stop    func() bool
	Skipped func(queue.File, error)
	Sent    func(n int)
}

// WriteBody writes the body to dst and returns the files whose bytes were
// written completely. A stop between files still closes the body; a stop
// inside a file returns ErrStopped.
func (w *BodyWriter) WriteBody(dst io.Writer) ([]queue.File, error) {
	limit := w.Limit
	if limit <= 0 {
		limit = DefaultBatchBytes
	}
	resolver := w.Resolver
	if resolver == nil {
		resolver = source.Files{}
	}

	var (
		written []queue.File
		total   int64
	)
	buf := make([]byte, chunkSize)
	for _, f := range w.Files {
		if w.stopped() {
			break
		}
		src, _, err := resolver.Open(f.Handle)
		if err != nil {
			if w.Skipped != nil {
				w.Skipped(f, err)
			}
			continue
		}
		if w.stopped() {
			src.Close()
			break
		}
		n, err := w.writePart(dst, f, src, buf)
		src.Close()
		total += n
		if err != nil {
			return written, err
		}
		written = append(written, f)
		if total > limit {
			break
		}
	}

	if _, err := io.WriteString(dst, "\r\n--"+Boundary+"--\r\n"); err != nil {
		return written, fmt.Errorf("write end boundary: %w", err)
	}
	return written, nil
}

func (w *BodyWriter) writePart(dst io.Writer, f queue.File, src io.Reader, buf []byte) (int64, error) {
	header := "\r\n--" + Boundary + "\r\n" +
		"Content-Disposition: form-data; name=" + f.Ref.String() + "\r\n\r\n"
	if _, err := io.WriteString(dst, header); err != nil {
		return 0, fmt.Errorf("write part header: %w", err)
	}

	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write %s: %w", f.Ref, err)
			}
			total += int64(n)
			if w.Sent != nil {
				w.Sent(n)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read %s: %w", f.Handle, readErr)
		}
		// Once the recorded size is on the wire the part is complete; a
		// stop is left to the check between files.
		if total < f.Size && w.stopped() {
			return total, ErrStopped
		}
	}
}

func (w *BodyWriter) stopped() bool {
	return w.Stop != nil && w.Stop()
}
