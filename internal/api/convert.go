package api

import (
	"time"

	"camliup/internal/logging"
	"camliup/internal/preflight"
	"camliup/internal/queue"
	"camliup/internal/upload"
)

// FromFile converts a pending file to its API representation.
func FromFile(f queue.File) QueueFile {
	return QueueFile{
		BlobRef: f.Ref.String(),
		Handle:  f.Handle,
		Size:    f.Size,
	}
}

// FromFiles converts pending files, preserving order. queuedAt supplies
// journal timestamps by ref when available.
func FromFiles(files []queue.File, queuedAt map[string]time.Time) []QueueFile {
	out := make([]QueueFile, 0, len(files))
	for _, f := range files {
		dto := FromFile(f)
		if ts, ok := queuedAt[dto.BlobRef]; ok && !ts.IsZero() {
			dto.QueuedAt = formatTime(ts)
		}
		out = append(out, dto)
	}
	return out
}

// QueuedAtIndex maps journal entries by blob ref.
func QueuedAtIndex(entries []queue.Entry) map[string]time.Time {
	index := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		index[e.Ref.String()] = e.QueuedAt
	}
	return index
}

// FromUploadStatus converts a coordinator snapshot.
func FromUploadStatus(s upload.Status) UploadStatus {
	return UploadStatus{
		State:      s.State.String(),
		Uploading:  s.Uploading(),
		QueueSize:  s.QueueSize,
		QueueBytes: s.QueueBytes,
		BytesSent:  s.BytesSent,
		Server:     s.Server,
		WorkerID:   s.WorkerID,
		LastError:  s.LastError,
	}
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{
			Name:     r.Name,
			Passed:   r.Passed,
			Detail:   r.Detail,
			Critical: r.Critical,
		})
	}
	return out
}

// FromLogEvent converts a hub event.
func FromLogEvent(evt logging.LogEvent) LogEvent {
	return LogEvent{
		Sequence:      evt.Sequence,
		Timestamp:     formatTime(evt.Timestamp),
		Level:         evt.Level,
		Message:       evt.Message,
		Component:     evt.Component,
		Blob:          evt.Blob,
		CorrelationID: evt.CorrelationID,
		Fields:        evt.Fields,
	}
}

// FromLogEvents converts a page of hub events.
func FromLogEvents(events []logging.LogEvent, next uint64) LogStreamResponse {
	resp := LogStreamResponse{Events: make([]LogEvent, 0, len(events)), Next: next}
	for _, evt := range events {
		resp.Events = append(resp.Events, FromLogEvent(evt))
	}
	return resp
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
