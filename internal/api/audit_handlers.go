package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/api/presenter"
	"github.com/gitdm/gitdm/internal/audit"
)

// auditFinder is implemented by auditors that keep their entries.
type auditFinder interface {
	Find(filter func(entry audit.Entry) bool, limit int) []audit.Entry
}

// handleAudit returns the latest token grants of the authenticated subject.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	finder, ok := s.auditor.(auditFinder)
	if !ok {
		presenter.Error(w, r, "audit log is not queryable on this server", http.StatusNotImplemented)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	sub := middleware.SubjectCtx(r.Context())
	entries := finder.Find(func(e audit.Entry) bool {
		return e.Subject == sub
	}, limit)
	if entries == nil {
		entries = []audit.Entry{}
	}

	presenter.JSON(w, r, entries, http.StatusOK)
}
