package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cdswerx/cdsync/internal/coord/admin"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/coord/status"
)

// defaultHistoryLimit is used when /api/history has no limit parameter.
const defaultHistoryLimit = 20

// Actions are the admin operations behind the API. *admin.Service implements it.
type Actions interface {
	ManualSync(ctx context.Context, user string) (admin.SyncResult, error)
	ResetSync(ctx context.Context, user string) error
	Status(ctx context.Context, user string) (status.Report, error)
	History(ctx context.Context, user string, limit int) ([]schema.HistoryEntry, error)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.actions.Status(r.Context(), r.Header.Get(UserHeader))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := s.actions.History(r.Context(), r.Header.Get(UserHeader), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []schema.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.actions.ManualSync(r.Context(), r.Header.Get(UserHeader))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if err := s.actions.ResetSync(r.Context(), user); err != nil {
		s.fail(w, err)
		return
	}
	s.BroadcastData(MessageTypeReset, map[string]string{"user": user})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// fail maps an action error to an HTTP status.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schema.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Printf("ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
