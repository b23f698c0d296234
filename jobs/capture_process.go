package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/smartportal/smartportal/internal/activity"
	jobmetrics "github.com/smartportal/smartportal/internal/jobs"
)

// CaptureProcessJob fingerprints uploaded captures after the request has
// already returned. The checksum lands in the activity trail so a stored
// image can later be matched against what the client sent.
type CaptureProcessJob struct {
	Recorder *activity.Recorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewCaptureProcessJob initialises the capture post-processing handler.
func NewCaptureProcessJob(recorder *activity.Recorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *CaptureProcessJob {
	return &CaptureProcessJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle executes the checksum pass.
func (j *CaptureProcessJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("capture process: handler not configured")
	}
	tracker := j.Metrics.Track(TaskCaptureProcess)
	return tracker.End(j.process(t))
}

func (j *CaptureProcessJob) process(t *asynq.Task) error {
	var payload CaptureProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Path == "" || payload.UserID == 0 {
		return asynq.SkipRetry
	}

	f, err := os.Open(payload.Path)
	if err != nil {
		// The file may have been removed between upload and processing;
		// retrying will not bring it back.
		if os.IsNotExist(err) {
			j.Logger.Warn("capture vanished before processing", slog.String("path", payload.Path))
			return asynq.SkipRetry
		}
		return err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return err
	}
	digest := hex.EncodeToString(hash.Sum(nil))

	j.Recorder.Record(activity.Entry{
		UserID: payload.UserID,
		Kind:   activity.KindCaptureUpload,
		Detail: fmt.Sprintf("capture processed: sha256=%s size=%d", digest, size),
	})
	j.Logger.Info("capture processed",
		slog.Int64("user_id", payload.UserID),
		slog.String("sha256", digest),
		slog.Int64("bytes", size))
	return nil
}
