package api

import (
	"net/http"

	"github.com/parleyhq/parley/internal/store"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
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
	writeData(w, http.StatusCreated, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// handleReplaceUser is the full update: every field is required.
func (s *Server) handleReplaceUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

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

	user, err := s.store.UpdateUser(r.Context(), id, store.UserUpdate{
		Name:         &name,
		Email:        &email,
		PasswordHash: &hash,
		Age:          &req.Age,
	})
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type patchUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Age      *int    `json:"age,omitempty"`
}

// handlePatchUser updates only the provided fields; each one present is
// validated like on create.
func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req patchUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == nil && req.Email == nil && req.Password == nil && req.Age == nil {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	var upd store.UserUpdate
	if req.Name != nil {
		name, ok := validateName(*req.Name)
		if !ok {
			writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
			return
		}
		upd.Name = &name
	}
	if req.Email != nil {
		email, ok := validateEmail(*req.Email)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid email address")
			return
		}
		upd.Email = &email
	}
	if req.Password != nil {
		if !validatePassword(*req.Password) {
			writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
			return
		}
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			s.log.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		upd.PasswordHash = &hash
	}
	if req.Age != nil {
		if !validateAge(*req.Age) {
			writeError(w, http.StatusBadRequest, "age must be between 0 and 150")
			return
		}
		upd.Age = req.Age
	}

	user, err := s.store.UpdateUser(r.Context(), id, upd)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}
