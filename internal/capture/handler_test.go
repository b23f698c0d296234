package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/auth"
	_ "github.com/smartportal/smartportal/internal/testing/guard"
)

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type memorySink struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (s *memorySink) Append(ctx context.Context, entry activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, maxBytes int64) (*Handler, *memorySink, func()) {
	t.Helper()
	store, err := NewStore(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sink := &memorySink{}
	recorder := activity.NewRecorder(sink, discardLogger(), 16)
	var closeOnce sync.Once
	flush := func() { closeOnce.Do(recorder.Close) }
	t.Cleanup(flush)
	return NewHandler(discardLogger(), store, recorder, StubVerifier{}, nil), sink, flush
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{UserID: 42, Username: "alice"})
	return req.WithContext(ctx)
}

func TestDecodeDataURL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(tinyPNG)

	data, ext, err := decodeDataURL("data:image/png;base64," + encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ext != ".png" {
		t.Fatalf("ext = %q", ext)
	}
	if !bytes.Equal(data, tinyPNG) {
		t.Fatalf("decoded bytes mismatch")
	}

	rejected := []string{
		"",
		"plain text",
		"data:image/png," + encoded,
		"data:image/gif;base64," + encoded,
		"data:text/html;base64," + encoded,
		"data:image/png;base64,@@not-base64@@",
	}
	for _, raw := range rejected {
		if _, _, err := decodeDataURL(raw); err == nil {
			t.Fatalf("expected rejection for %q", raw)
		}
	}
}

func TestCaptureUpload(t *testing.T) {
	handler, sink, flush := newTestHandler(t, 1<<20)
	encoded := base64.StdEncoding.EncodeToString(tinyPNG)
	body, _ := json.Marshal(map[string]string{"image": "data:image/png;base64," + encoded})

	res := httptest.NewRecorder()
	handler.handleCapture(res, authedRequest(http.MethodPost, "/api/capture", body))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success {
		t.Fatalf("expected success, got %q", payload.Message)
	}

	flush()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) == 0 {
		t.Fatalf("upload must land in the activity trail")
	}
	entry := sink.entries[0]
	if entry.Kind != activity.KindCaptureUpload || entry.UserID != 42 {
		t.Fatalf("entry = %+v", entry)
	}
	path := strings.TrimPrefix(entry.Detail, "capture stored: ")
	stored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored capture: %v", err)
	}
	if !bytes.Equal(stored, tinyPNG) {
		t.Fatalf("stored bytes mismatch")
	}
}

func TestCaptureRejectsOversizedImage(t *testing.T) {
	handler, _, _ := newTestHandler(t, 16)
	encoded := base64.StdEncoding.EncodeToString(tinyPNG)
	body, _ := json.Marshal(map[string]string{"image": "data:image/png;base64," + encoded})

	res := httptest.NewRecorder()
	handler.handleCapture(res, authedRequest(http.MethodPost, "/api/capture", body))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestCaptureRejectsBadPayload(t *testing.T) {
	handler, _, _ := newTestHandler(t, 1<<20)

	res := httptest.NewRecorder()
	handler.handleCapture(res, authedRequest(http.MethodPost, "/api/capture", []byte("{not json")))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}

	res = httptest.NewRecorder()
	body, _ := json.Marshal(map[string]string{"image": "not a data url"})
	handler.handleCapture(res, authedRequest(http.MethodPost, "/api/capture", body))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestVerifyBiometric(t *testing.T) {
	handler, _, _ := newTestHandler(t, 1<<20)

	body, _ := json.Marshal(map[string]string{"credential": "any-sample"})
	res := httptest.NewRecorder()
	handler.handleVerifyBiometric(res, authedRequest(http.MethodPost, "/api/verify-biometric", body))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Biometric authentication successful") {
		t.Fatalf("body = %s", res.Body.String())
	}

	body, _ = json.Marshal(map[string]string{"credential": ""})
	res = httptest.NewRecorder()
	handler.handleVerifyBiometric(res, authedRequest(http.MethodPost, "/api/verify-biometric", body))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("empty credential status = %d, want 400", res.Code)
	}
}
