package api

import (
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/auth"
)

func (s *Server) handleListBlogs(w http.ResponseWriter, r *http.Request) {
	blogs, err := s.store.ListBlogs(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, blogs)
}

func (s *Server) handleGetBlog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid blog id")
		return
	}
	blog, err := s.store.GetBlog(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, blog)
}

type createBlogRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreateBlog(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req createBlogRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	blog, err := s.store.CreateBlog(r.Context(), title, req.Content, identity.UserID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, blog)
}
