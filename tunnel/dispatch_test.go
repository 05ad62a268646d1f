package tunnel

import (
	"io"
	"net/http"
	"testing"
)

func TestExecutorRunsFrameAgainstHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/slides/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"slideId":"abc"}`)
	})

	exec := newExecutor(mux)
	resp := exec.execute(Frame{
		Kind:      FrameHTTPRequest,
		RequestID: "req-1",
		Method:    http.MethodGet,
		Path:      "/slides/abc",
	})

	if resp.Kind != FrameHTTPResponse {
		t.Fatalf("expected http_response frame, got %s", resp.Kind)
	}
	if resp.RequestID != "req-1" {
		t.Fatalf("expected requestId to round-trip, got %q", resp.RequestID)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if string(resp.Body) != `{"slideId":"abc"}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if resp.Header["X-Test"] != "yes" {
		t.Fatalf("expected X-Test header to round-trip, got %v", resp.Header)
	}
}

func TestFrameCodecRoundTrips(t *testing.T) {
	f := Frame{
		Kind: FrameEvent, EventKind: "slide.ready", EntityID: "slideA",
		Data: map[string]interface{}{"maxLevel": float64(6)},
	}
	buf, err := encodeFrame(f)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	decoded, err := decodeFrame(buf)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if decoded.EventKind != f.EventKind || decoded.EntityID != f.EntityID {
		t.Fatalf("round-trip mismatch: %+v vs %+v", decoded, f)
	}
}
