// Package auth issues and verifies the HS256 bearer tokens that protect the
// REST API and the chat websocket, and wraps bcrypt for password storage.
package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnsupportedJWT     = errors.New("unsupported jwt")
)

// Identity is the authenticated principal carried by a verified token.
type Identity struct {
	UserID int64
	Email  string
}
