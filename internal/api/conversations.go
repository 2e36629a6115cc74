package api

import (
	"net/http"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/model"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	convs, err := s.store.ListConversationsForUser(r.Context(), identity.UserID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, convs)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if !isParticipant(conv, identity.UserID) {
		// Report not-found rather than forbidden so conversation ids cannot
		// be probed.
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgs)
}

// handleDirectConversation returns the direct conversation with the given
// user, creating it on first use.
func (s *Server) handleDirectConversation(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	otherID, ok := pathID(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if otherID == identity.UserID {
		writeError(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}

	// The peer must exist before a conversation can reference them.
	if _, err := s.store.GetUser(r.Context(), otherID); err != nil {
		s.storeError(w, r, err)
		return
	}

	conv, created, err := s.store.GetOrCreateDirectConversation(r.Context(), identity.UserID, otherID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, status, conv)
}

func isParticipant(conv model.Conversation, userID int64) bool {
	for _, p := range conv.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
