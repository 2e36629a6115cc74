package api

import (
	"errors"
	"net/http"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/httpserver"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/store"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	name, ok := validateName(req.Name)
	if !ok {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}
	email, ok := validateEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if !validatePassword(req.Password) {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if !validateAge(req.Age) {
		writeError(w, http.StatusBadRequest, "age must be between 0 and 150")
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.log.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := s.store.CreateUser(r.Context(), store.NewUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Age:          req.Age,
	})
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	s.issueSession(w, http.StatusCreated, user)
	s.metrics.Inc(metrics.UserRegistrations)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	email, ok := validateEmail(req.Email)
	if !ok || req.Password == "" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error("compare password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.issueSession(w, http.StatusOK, user)
	s.metrics.Inc(metrics.UserLogins)
}

// issueSession writes the user plus a fresh access token.
func (s *Server) issueSession(w http.ResponseWriter, status int, user model.User) {
	token, err := s.issuer.Issue(auth.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		s.log.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpserver.WriteJSON(w, status, envelope{
		Success:     true,
		Data:        user,
		AccessToken: token,
	})
}
