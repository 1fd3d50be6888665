package ipc

import "camliup/internal/api"

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Camliup"

// QueueFile mirrors the HTTP API queue DTO.
type QueueFile = api.QueueFile

// UploadStatus mirrors the HTTP API coordinator DTO.
type UploadStatus = api.UploadStatus

// CheckResult mirrors the HTTP API preflight DTO.
type CheckResult = api.CheckResult

// EnqueueResult is the per-handle outcome of an enqueue call.
type EnqueueResult = api.EnqueueResult

// EnqueueRequest queues handles in order.
type EnqueueRequest struct {
	Handles []string `json:"handles"`
}

// EnqueueResponse lists per-handle outcomes.
type EnqueueResponse struct {
	Results []EnqueueResult `json:"results"`
}

// PauseRequest asks the running worker to stop.
type PauseRequest struct{}

// PauseResponse reports whether a worker was asked to stop.
type PauseResponse struct {
	Paused  bool   `json:"paused"`
	Message string `json:"message"`
}

// ResumeRequest starts a worker.
type ResumeRequest struct{}

// ResumeResponse reports whether a worker was started.
type ResumeResponse struct {
	Resumed bool   `json:"resumed"`
	Message string `json:"message"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and coordinator state.
type StatusResponse struct {
	Running     bool          `json:"running"`
	PID         int           `json:"pid"`
	JournalPath string        `json:"journal_path"`
	LockPath    string        `json:"lock_path"`
	APIAddress  string        `json:"api_address,omitempty"`
	Upload      UploadStatus  `json:"upload"`
	Checks      []CheckResult `json:"checks"`
}

// QueueListRequest fetches the pending files.
type QueueListRequest struct{}

// QueueListResponse returns pending files in upload order.
type QueueListResponse struct {
	Files []QueueFile `json:"files"`
}

// LogTailRequest fetches log lines after a sequence cursor.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns rendered log lines and the next cursor.
type LogTailResponse struct {
	Lines []string `json:"lines"`
	Next  uint64   `json:"next"`
}
