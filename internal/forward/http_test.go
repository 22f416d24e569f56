package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/you/groupwatch/internal/core"
)

type recordingRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *recordingRecorder) ObserveForward(result string, _ time.Duration) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func (r *recordingRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return ""
	}
	return r.results[len(r.results)-1]
}

func samplePayload() core.ForwardPayload {
	return core.ForwardPayload{
		GroupID:      "-100123456789",
		GroupName:    "Lobby",
		UserID:       "7",
		Username:     "alice",
		Nickname:     "Alice Smith",
		Message:      "hi",
		SendDateTime: "2024-05-01 20:00:00",
	}
}

func TestForwardPostsJSON(t *testing.T) {
	var (
		mu          sync.Mutex
		got         map[string]any
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		mu.Lock()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	f := NewHTTP(srv.URL, time.Second, rec)
	f.Forward(context.Background(), samplePayload())

	mu.Lock()
	defer mu.Unlock()
	if contentType != "application/json; charset=utf-8" {
		t.Fatalf("content-type = %q", contentType)
	}
	want := map[string]any{
		"groupId":      "-100123456789",
		"groupName":    "Lobby",
		"userId":       "7",
		"username":     "alice",
		"nickname":     "Alice Smith",
		"message":      "hi",
		"sendDateTime": "2024-05-01 20:00:00",
	}
	if len(got) != len(want) {
		t.Fatalf("payload fields = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s = %v, want %v", k, got[k], v)
		}
	}
	if rec.last() != "ok" {
		t.Fatalf("result = %q, want ok", rec.last())
	}
}

func TestForwardNonOKStatusIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing userId", http.StatusBadRequest)
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	NewHTTP(srv.URL, time.Second, rec).Forward(context.Background(), samplePayload())
	if rec.last() != "status_4xx" {
		t.Fatalf("result = %q, want status_4xx", rec.last())
	}
}

func TestForwardCreatedIsNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	NewHTTP(srv.URL, time.Second, rec).Forward(context.Background(), samplePayload())
	if rec.last() != "status_2xx" {
		t.Fatalf("result = %q, want status_2xx", rec.last())
	}
}

func TestForwardTimeoutReturnsNormally(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recordingRecorder{}
	f := NewHTTP(srv.URL, 50*time.Millisecond, rec)

	done := make(chan struct{})
	go func() {
		f.Forward(context.Background(), samplePayload())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Forward did not return after client timeout")
	}
	if rec.last() != "transport_error" {
		t.Fatalf("result = %q, want transport_error", rec.last())
	}
}

func TestForwardUnreachableSink(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &recordingRecorder{}
	NewHTTP(url, time.Second, rec).Forward(context.Background(), samplePayload())
	if rec.last() != "transport_error" {
		t.Fatalf("result = %q, want transport_error", rec.last())
	}
}

func TestNewHTTPDefaultsTimeout(t *testing.T) {
	f := NewHTTP("http://example.invalid", 0, nil)
	if f.HTTP.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %s, want %s", f.HTTP.Timeout, DefaultTimeout)
	}
}

type collectingTap struct {
	got []core.ForwardPayload
}

func (c *collectingTap) Broadcast(p core.ForwardPayload) { c.got = append(c.got, p) }

type nopForwarder struct{ calls int }

func (n *nopForwarder) Forward(context.Context, core.ForwardPayload) { n.calls++ }

func TestTapMirrorsPayload(t *testing.T) {
	base := &nopForwarder{}
	tap := &collectingTap{}
	Tap(base, tap).Forward(context.Background(), samplePayload())
	if base.calls != 1 || len(tap.got) != 1 || tap.got[0].Username != "alice" {
		t.Fatalf("unexpected tap state: base=%d tap=%v", base.calls, tap.got)
	}
}
