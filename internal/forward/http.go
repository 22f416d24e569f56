package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/you/groupwatch/internal/core"
)

const (
	DefaultTimeout = 3 * time.Second
	maxBodyLog     = 512
)

// Forwarder delivers a matched payload. Implementations never fail the
// caller: delivery problems are logged and swallowed.
type Forwarder interface {
	Forward(ctx context.Context, payload core.ForwardPayload)
}

// Recorder receives per-attempt outcomes; metrics implement it.
type Recorder interface {
	ObserveForward(result string, dur time.Duration)
}

// HTTPForwarder POSTs payloads as JSON to the sink URL.
type HTTPForwarder struct {
	URL      string
	HTTP     *http.Client
	Recorder Recorder
}

func NewHTTP(url string, timeout time.Duration, rec Recorder) *HTTPForwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPForwarder{
		URL:      url,
		HTTP:     &http.Client{Timeout: timeout},
		Recorder: rec,
	}
}

// Forward sends payload once. Only HTTP 200 counts as delivered.
func (f *HTTPForwarder) Forward(ctx context.Context, payload core.ForwardPayload) {
	start := time.Now()
	result := f.post(ctx, payload)
	if f.Recorder != nil {
		f.Recorder.ObserveForward(result, time.Since(start))
	}
}

func (f *HTTPForwarder) post(ctx context.Context, payload core.ForwardPayload) string {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("forward: encode payload", "group_id", payload.GroupID, "err", err)
		return "encode_error"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		slog.Error("forward: build request", "url", f.URL, "err", err)
		return "request_error"
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		slog.Error("forward: push failed",
			"group_id", payload.GroupID,
			"user_id", payload.UserID,
			"err", err,
		)
		return "transport_error"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
		slog.Error("forward: push rejected",
			"group_id", payload.GroupID,
			"user_id", payload.UserID,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(snippet)),
		)
		return "status_" + statusClass(resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Debug("forward: pushed", "group_id", payload.GroupID, "user_id", payload.UserID)
	return "ok"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
