// Package api serves the REST surface: accounts, blogs, conversations and
// meeting creation. Responses use a uniform success envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/httpserver"
	"github.com/parleyhq/parley/internal/meetings"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/store"
)

// Store is the slice of the persistence layer the REST handlers use.
type Store interface {
	CreateUser(ctx context.Context, in store.NewUser) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context, query string) ([]model.User, error)
	UpdateUser(ctx context.Context, id int64, upd store.UserUpdate) (model.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateBlog(ctx context.Context, title, content string, authorID int64) (model.Blog, error)
	GetBlog(ctx context.Context, id int64) (model.Blog, error)
	ListBlogs(ctx context.Context) ([]model.Blog, error)

	GetOrCreateDirectConversation(ctx context.Context, a, b int64) (model.Conversation, bool, error)
	GetConversation(ctx context.Context, id int64) (model.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
}

// MeetingCreator mints meeting codes. Implemented by meetings.Registry.
type MeetingCreator interface {
	Create() (meetings.Meeting, error)
}

type Server struct {
	log      *slog.Logger
	store    Store
	meetings MeetingCreator
	issuer   *auth.TokenIssuer
	verifier auth.TokenVerifier
	hasher   auth.PasswordHasher
	metrics  *metrics.Metrics
}

type Options struct {
	Logger   *slog.Logger
	Store    Store
	Meetings MeetingCreator
	Issuer   *auth.TokenIssuer
	Verifier auth.TokenVerifier
	Hasher   auth.PasswordHasher
	Metrics  *metrics.Metrics
}

func NewServer(opts Options) *Server {
	return &Server{
		log:      opts.Logger,
		store:    opts.Store,
		meetings: opts.Meetings,
		issuer:   opts.Issuer,
		verifier: opts.Verifier,
		hasher:   opts.Hasher,
		metrics:  opts.Metrics,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleReplaceUser)
	mux.HandleFunc("PATCH /api/users/{id}", s.handlePatchUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)

	mux.HandleFunc("GET /api/blogs", s.handleListBlogs)
	mux.HandleFunc("GET /api/blogs/{id}", s.handleGetBlog)
	mux.HandleFunc("POST /api/blogs", s.requireAuth(s.handleCreateBlog))

	mux.HandleFunc("GET /api/conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.requireAuth(s.handleListMessages))
	mux.HandleFunc("POST /api/conversations/direct/{userId}", s.requireAuth(s.handleDirectConversation))

	mux.HandleFunc("POST /api/meetings", s.handleCreateMeeting)
}

// envelope is the uniform response shape. Data is omitted on errors, Message
// on successes; AccessToken only appears on login and signup.
type envelope struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Message     string `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	httpserver.WriteJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	httpserver.WriteJSON(w, status, envelope{Success: false, Message: message})
}

// authHandler is an HTTP handler that additionally receives the verified
// caller identity.
type authHandler func(w http.ResponseWriter, r *http.Request, identity auth.Identity)

func (s *Server) requireAuth(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential, err := auth.CredentialFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		identity, err := s.verifier.Verify(credential)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, identity)
	}
}

// decodeBody strictly decodes a JSON request body: unknown fields and
// trailing data are rejected.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// storeError maps persistence failures to HTTP responses.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
	default:
		s.log.Error("store operation failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
