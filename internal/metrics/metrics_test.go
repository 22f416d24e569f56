package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(body)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncEventsSeen("a")
	m.IncDropped("not_watched")
	m.IncLookupErrors()
	m.ObserveForward("ok", time.Millisecond)
	m.ObserveWatchRefresh(3, nil)
	m.SetAccountState("a", "", "connecting")
	m.ObserveRequest("/healthz", http.MethodGet, 200, time.Millisecond)
	m.IncRateLimited()
	m.IncStreamClients(1)
	m.IncStreamDrops()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler status = %d", rec.Code)
	}
}

func TestAccountStateMovesBetweenLabels(t *testing.T) {
	m := New()
	m.SetAccountState("***1234", "", "connecting")
	m.SetAccountState("***1234", "connecting", "listening")

	body := scrape(t, m)
	if !strings.Contains(body, `groupwatch_account_state{account="***1234",state="connecting"} 0`) {
		t.Fatalf("connecting not cleared:\n%s", body)
	}
	if !strings.Contains(body, `groupwatch_account_state{account="***1234",state="listening"} 1`) {
		t.Fatalf("listening not set:\n%s", body)
	}
}

func TestWatchRefreshKeepsSizeOnError(t *testing.T) {
	m := New()
	m.ObserveWatchRefresh(4, nil)
	m.ObserveWatchRefresh(0, errors.New("db down"))

	body := scrape(t, m)
	if !strings.Contains(body, "groupwatch_watchset_size 4") {
		t.Fatalf("size changed on error:\n%s", body)
	}
	if !strings.Contains(body, `groupwatch_watchset_refresh_total{result="error"} 1`) {
		t.Fatalf("error refresh not counted:\n%s", body)
	}
}
