package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Run("urls as string or array", func(t *testing.T) {
		servers, err := ParseICEServersJSON(`[
			{"urls": "stun:stun.example.com:3478"},
			{"urls": ["turn:turn.example.com:3478", "turns:turn.example.com:5349"], "username": "u", "credential": "p"}
		]`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(servers) != 2 {
			t.Fatalf("got %d servers, want 2", len(servers))
		}
		if len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
			t.Fatalf("servers[0].URLs=%v", servers[0].URLs)
		}
		if len(servers[1].URLs) != 2 {
			t.Fatalf("servers[1].URLs=%v", servers[1].URLs)
		}
		if servers[1].Username != "u" || servers[1].Credential != "p" {
			t.Fatalf("servers[1] credentials not preserved: %+v", servers[1])
		}
	})

	t.Run("turn without credential is allowed", func(t *testing.T) {
		servers, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478"}]`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if servers[0].Credential != nil {
			t.Fatalf("Credential=%v, want nil", servers[0].Credential)
		}
	})

	t.Run("rejects unsupported schemes", func(t *testing.T) {
		_, err := ParseICEServersJSON(`[{"urls": "http://example.com"}]`)
		if err == nil || !strings.Contains(err.Error(), "unsupported url scheme") {
			t.Fatalf("err=%v, want scheme error", err)
		}
	})

	t.Run("rejects missing urls", func(t *testing.T) {
		_, err := ParseICEServersJSON(`[{"username": "u"}]`)
		if err == nil || !strings.Contains(err.Error(), "missing urls") {
			t.Fatalf("err=%v, want missing urls error", err)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := ParseICEServersJSON(`{"urls":`); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestParseICEServersFromValues(t *testing.T) {
	t.Run("json takes precedence", func(t *testing.T) {
		servers, err := parseICEServersFromValues(
			`[{"urls": "stun:json.example.com"}]`,
			"stun:ignored.example.com", "", "", "")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
			t.Fatalf("servers=%v, want the JSON entry only", servers)
		}
	})

	t.Run("stun and turn lists", func(t *testing.T) {
		servers, err := parseICEServersFromValues("",
			"stun:a.example.com, stun:b.example.com",
			"turn:t.example.com", "user", "pass")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(servers) != 2 {
			t.Fatalf("got %d servers, want 2", len(servers))
		}
		if len(servers[0].URLs) != 2 {
			t.Fatalf("stun URLs=%v", servers[0].URLs)
		}
		if servers[1].Username != "user" || servers[1].Credential != "pass" {
			t.Fatalf("turn server=%+v", servers[1])
		}
	})

	t.Run("empty config yields no servers", func(t *testing.T) {
		servers, err := parseICEServersFromValues("", "", "", "", "")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(servers) != 0 {
			t.Fatalf("servers=%v, want none", servers)
		}
	})
}
