package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/turnrest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	s := New(opts)
	s.ready.Store(true)
	return s
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{})
	rr := doRequest(s, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t, Options{})
		rr := doRequest(s, httptest.NewRequest("GET", "/readyz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("not serving yet", func(t *testing.T) {
		s := New(Options{Logger: testLogger()})
		rr := doRequest(s, httptest.NewRequest("GET", "/readyz", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("readiness check fails", func(t *testing.T) {
		s := newTestServer(t, Options{
			Readiness: func(ctx context.Context) error { return errors.New("mongodb down") },
		})
		rr := doRequest(s, httptest.NewRequest("GET", "/readyz", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "mongodb down") {
			t.Fatalf("body=%s", rr.Body.String())
		}
	})
}

func TestVersion(t *testing.T) {
	s := newTestServer(t, Options{Build: BuildInfo{Commit: "abc123", BuildTime: "2026-01-02"}})
	rr := doRequest(s, httptest.NewRequest("GET", "/version", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got BuildInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Commit != "abc123" {
		t.Fatalf("commit=%q", got.Commit)
	}
}

func TestICEServersEndpoint(t *testing.T) {
	t.Run("plain servers", func(t *testing.T) {
		cfg := config.Config{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com"}}},
		}
		s := newTestServer(t, Options{Config: cfg})
		rr := doRequest(s, httptest.NewRequest("GET", "/webrtc/ice", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "stun:stun.example.com") {
			t.Fatalf("body=%s", rr.Body.String())
		}
	})

	t.Run("turn rest credentials stamped", func(t *testing.T) {
		gen, err := turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:    "secret",
			TTLSeconds:      600,
			UsernamePrefix:  "parley",
			Now:             func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
			SessionIDSource: func() (string, error) { return "sid", nil },
		})
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		cfg := config.Config{
			ICEServers: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.example.com"}},
				{URLs: []string{"turn:turn.example.com:3478"}},
			},
		}
		s := newTestServer(t, Options{Config: cfg, TURN: gen})
		rr := doRequest(s, httptest.NewRequest("GET", "/webrtc/ice", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}

		var body struct {
			ICEServers []struct {
				URLs       []string `json:"urls"`
				Username   string   `json:"username"`
				Credential string   `json:"credential"`
			} `json:"iceServers"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.ICEServers) != 2 {
			t.Fatalf("servers=%+v", body.ICEServers)
		}
		if body.ICEServers[0].Username != "" {
			t.Fatalf("stun server got credentials: %+v", body.ICEServers[0])
		}
		if body.ICEServers[1].Username != "1700000600:parley:sid" {
			t.Fatalf("turn username=%q", body.ICEServers[1].Username)
		}
		if body.ICEServers[1].Credential == "" {
			t.Fatalf("turn credential missing")
		}
	})
}

func TestOriginPolicy(t *testing.T) {
	cfg := config.Config{AllowedOrigins: []string{"https://app.example.com"}}

	t.Run("allowed origin gets cors headers", func(t *testing.T) {
		s := newTestServer(t, Options{Config: cfg})
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := doRequest(s, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Fatalf("Access-Control-Allow-Origin=%q", got)
		}
	})

	t.Run("disallowed origin rejected", func(t *testing.T) {
		s := newTestServer(t, Options{Config: cfg})
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr := doRequest(s, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		s := newTestServer(t, Options{Config: cfg})
		req := httptest.NewRequest("OPTIONS", "/api/users", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
		rr := doRequest(s, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("status=%d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type" {
			t.Fatalf("Access-Control-Allow-Headers=%q", got)
		}
	})

	t.Run("no origin header passes", func(t *testing.T) {
		s := newTestServer(t, Options{Config: cfg})
		rr := doRequest(s, httptest.NewRequest("GET", "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}
