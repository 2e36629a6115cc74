package api

import (
	"net/http"

	"github.com/parleyhq/parley/internal/metrics"
)

// handleCreateMeeting mints a meeting code. Creation is unauthenticated, like
// joining: meeting codes are capability tokens shared out of band.
func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, err := s.meetings.Create()
	if err != nil {
		s.log.Error("create meeting", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.Inc(metrics.MeetingsCreated)
	writeData(w, http.StatusCreated, map[string]any{"meetingId": meeting.ID})
}
