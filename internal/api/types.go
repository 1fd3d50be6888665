package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueFile describes one pending file.
type QueueFile struct {
	BlobRef  string `json:"blobRef"`
	Handle   string `json:"handle"`
	Size     int64  `json:"size"`
	QueuedAt string `json:"queuedAt,omitempty"`
}

// UploadStatus summarizes the coordinator.
type UploadStatus struct {
	State      string `json:"state"`
	Uploading  bool   `json:"uploading"`
	QueueSize  int    `json:"queueSize"`
	QueueBytes int64  `json:"queueBytes"`
	BytesSent  int64  `json:"bytesSent"`
	Server     string `json:"server"`
	WorkerID   string `json:"workerId,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// CheckResult mirrors a preflight result.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail,omitempty"`
	Critical bool   `json:"critical,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running     bool          `json:"running"`
	PID         int           `json:"pid"`
	JournalPath string        `json:"journalPath"`
	LockPath    string        `json:"lockPath"`
	Upload      UploadStatus  `json:"upload"`
	Checks      []CheckResult `json:"checks"`
}

// QueueListResponse wraps the pending files in queue order.
type QueueListResponse struct {
	Files []QueueFile `json:"files"`
}

// EnqueueRequest asks the daemon to queue one or more handles.
type EnqueueRequest struct {
	Handles []string `json:"handles"`
}

// EnqueueResult reports the outcome for a single handle.
type EnqueueResult struct {
	Handle string `json:"handle"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// EnqueueResponse lists per-handle outcomes in request order.
type EnqueueResponse struct {
	Results []EnqueueResult `json:"results"`
}

// ControlResponse is returned by pause and resume.
type ControlResponse struct {
	Changed bool   `json:"changed"`
	Message string `json:"message,omitempty"`
}

// LogEvent is a structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Blob          string            `json:"blob,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse carries a page of log events and the cursor to resume from.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
