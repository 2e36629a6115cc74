package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(UserLogins)
	m.Add(SignalingRelayed, 2)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE parley_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `parley_events_total{event="signaling_messages_relayed"} 2`) {
		t.Fatalf("missing relayed counter: %s", body)
	}
	if !strings.Contains(body, `parley_events_total{event="user_logins"} 1`) {
		t.Fatalf("missing login counter: %s", body)
	}
	// Ensure label escaping matches Prometheus text format rules.
	if !strings.Contains(body, `parley_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("missing escaped counter: %s", body)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New()
	m.Inc(ChatMessagesSent)
	snap := m.Snapshot()
	snap[ChatMessagesSent] = 99
	if got := m.Get(ChatMessagesSent); got != 1 {
		t.Fatalf("Get=%d after mutating snapshot, want 1", got)
	}
}
