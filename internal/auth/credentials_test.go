package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestCredentialFromRequest(t *testing.T) {
	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/conversations", nil)
		r.Header.Set("Authorization", "Bearer abc.def.ghi")
		token, err := CredentialFromRequest(r)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if token != "abc.def.ghi" {
			t.Fatalf("token=%q", token)
		}
	})

	t.Run("bearer scheme is case-insensitive", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "bearer tok")
		token, err := CredentialFromRequest(r)
		if err != nil || token != "tok" {
			t.Fatalf("token=%q err=%v", token, err)
		}
	})

	t.Run("query fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/chat?token=zzz", nil)
		token, err := CredentialFromRequest(r)
		if err != nil || token != "zzz" {
			t.Fatalf("token=%q err=%v", token, err)
		}
	})

	t.Run("header wins over query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/chat?token=fromquery", nil)
		r.Header.Set("Authorization", "Bearer fromheader")
		token, err := CredentialFromRequest(r)
		if err != nil || token != "fromheader" {
			t.Fatalf("token=%q err=%v", token, err)
		}
	})

	t.Run("non-bearer scheme", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		if _, err := CredentialFromRequest(r); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("err=%v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("bearer with empty token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer ")
		if _, err := CredentialFromRequest(r); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("err=%v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		if _, err := CredentialFromRequest(r); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("err=%v, want ErrMissingCredentials", err)
		}
	})
}
