package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCaptureProcess post-processes an uploaded capture.
	TaskCaptureProcess = "capture:process"
	// TaskSessionPrune removes expired session audit rows.
	TaskSessionPrune = "session:prune"
)

// CaptureProcessPayload identifies an uploaded capture on disk.
type CaptureProcessPayload struct {
	UserID int64  `json:"user_id"`
	Path   string `json:"path"`
}

// NewCaptureProcessTask constructs an Asynq task.
func NewCaptureProcessTask(payload CaptureProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCaptureProcess, data), nil
}

// NewSessionPruneTask constructs the nightly prune task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil)
}
