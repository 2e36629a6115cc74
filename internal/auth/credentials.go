package auth

import (
	"net/http"
	"strings"
)

// CredentialFromRequest extracts a bearer token from an HTTP request. The
// Authorization header wins; a token query parameter is accepted as a fallback
// for websocket clients that cannot set headers.
func CredentialFromRequest(r *http.Request) (string, error) {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		scheme, token, found := strings.Cut(raw, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", ErrInvalidCredentials
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return "", ErrInvalidCredentials
		}
		return token, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingCredentials
}
