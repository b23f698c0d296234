package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/jobs"
)

var errInvalidDataURL = errors.New("invalid image data url")

// Enqueuer submits capture post-processing work.
type Enqueuer interface {
	EnqueueCaptureProcess(ctx context.Context, payload jobs.CaptureProcessPayload) (*asynq.TaskInfo, error)
}

// Handler serves the capture upload and biometric stub endpoints. Both
// mount behind the gate; neither contains core authentication logic.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	recorder *activity.Recorder
	verifier BiometricVerifier
	enqueue  Enqueuer
}

// NewHandler builds a Handler instance. enqueue may be nil when no worker
// is deployed; uploads then skip post-processing.
func NewHandler(logger *slog.Logger, store *Store, recorder *activity.Recorder, verifier BiometricVerifier, enqueue Enqueuer) *Handler {
	return &Handler{
		logger:   logger,
		store:    store,
		recorder: recorder,
		verifier: verifier,
		enqueue:  enqueue,
	}
}

// MountAPI registers the gated capture routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Post("/api/capture", h.handleCapture)
	r.Post("/api/verify-biometric", h.handleVerifyBiometric)
}

type captureRequest struct {
	Image string `json:"image"`
}

type biometricRequest struct {
	Credential string `json:"credential"`
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
		return
	}

	// Base64 inflates the image by a third; allow for that plus the JSON
	// envelope before the decoded size check applies the real cap.
	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxBytes()*4/3+4096)
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid capture payload"})
		return
	}

	data, ext, err := decodeDataURL(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Unsupported image data"})
		return
	}
	if int64(len(data)) > h.store.MaxBytes() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Image too large"})
		return
	}

	path, err := h.store.Save(id.UserID, data, ext)
	if err != nil {
		h.logger.Error("save capture", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to store capture"})
		return
	}

	h.recorder.Record(activity.Entry{
		UserID:    id.UserID,
		Kind:      activity.KindCaptureUpload,
		Detail:    "capture stored: " + path,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})

	if h.enqueue != nil {
		if _, err := h.enqueue.EnqueueCaptureProcess(r.Context(), jobs.CaptureProcessPayload{UserID: id.UserID, Path: path}); err != nil {
			h.logger.Warn("enqueue capture processing", slog.Any("error", err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Capture stored"})
}

func (h *Handler) handleVerifyBiometric(w http.ResponseWriter, r *http.Request) {
	var req biometricRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid biometric credential"})
		return
	}
	ok, err := h.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		h.logger.Error("biometric verify", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Verification failed"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid biometric credential"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Biometric authentication successful"})
}

// decodeDataURL splits a data:image/...;base64 payload into raw bytes and
// a file extension.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	rest, found := strings.CutPrefix(dataURL, "data:")
	if !found {
		return nil, "", errInvalidDataURL
	}
	meta, encoded, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", errInvalidDataURL
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	ext, ok := imageExtensions[mediaType]
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", errInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", errInvalidDataURL
	}
	return data, ext, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
