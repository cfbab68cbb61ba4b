package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/api/presenter"
	"github.com/gitdm/gitdm/internal/audit"
	"github.com/gitdm/gitdm/internal/metrics"
	"github.com/gitdm/gitdm/internal/session"
)

func DecodePayload(r *http.Request, dest any, allowEmpty bool) error {
	switch r.Header.Get("Content-Type") {
	case "application/json", "":
		// strict encoding for JSON
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dest); err != nil {
			if !errors.Is(err, io.EOF) || !allowEmpty {
				return err
			}
		}
		// ensure there's no extra data
		if dec.More() {
			return errors.New("extra data in request body")
		}
		return nil
	default:
		return errors.New("unsupported content type")
	}
}

func (s *Server) newAuditEntry(r *http.Request, action string) *audit.Entry {
	return &audit.Entry{
		ID:     middleware.CorrelationCtx(r.Context()),
		Time:   time.Now(),
		Action: action,
	}
}

func (s *Server) writeAudit(r *http.Request, entry *audit.Entry) {
	if err := s.auditor.Log(*entry); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write audit log")
	}
}

// handleToken exchanges an email and password for a token pair.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	auditEntry := s.newAuditEntry(r, audit.ActionTokenObtain)
	defer s.writeAudit(r, auditEntry)

	var payload TokenObtainPayload
	if err := DecodePayload(r, &payload, false); err != nil {
		logger.Warn().Err(err).Msg("failed to decode token request payload")
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		auditEntry.Error = "invalid request payload"
		return
	}
	if payload.Email == "" || payload.Password == "" {
		presenter.Error(w, r, "email and password are required", http.StatusBadRequest)
		auditEntry.Error = "missing email or password"
		return
	}
	auditEntry.Subject = payload.Email

	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("sub", payload.Email)
	})

	if !s.data.Authenticate(payload.Email, payload.Password) {
		logger.Warn().Msg("login rejected")
		s.metrics.Rejected(metrics.GrantPassword)
		presenter.ErrorCode(w, r, "No active account found with the given credentials",
			"no_active_account", http.StatusUnauthorized)
		auditEntry.Error = "invalid credentials"
		return
	}

	pair, err := s.authority.Issue(payload.Email)
	if err != nil {
		logger.Error().Err(err).Msg("failed to issue token pair")
		presenter.Error(w, r, "token issuance failed", http.StatusInternalServerError)
		auditEntry.Error = "token issuance failed"
		return
	}
	s.metrics.Issued(metrics.GrantPassword)
	auditEntry.Granted = true
	auditEntry.TokenFingerprint = session.Fingerprint(pair.Access)
	logger.Info().Msg("token pair issued")

	presenter.JSON(w, r, pair, http.StatusOK)
}

// handleRefresh exchanges a refresh token for a new access token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	auditEntry := s.newAuditEntry(r, audit.ActionTokenRefresh)
	defer s.writeAudit(r, auditEntry)

	var payload TokenRefreshPayload
	if err := DecodePayload(r, &payload, false); err != nil || payload.Refresh == "" {
		logger.Warn().Err(err).Msg("failed to decode refresh request payload")
		presenter.Error(w, r, "refresh is required", http.StatusBadRequest)
		auditEntry.Error = "missing refresh token"
		return
	}

	sub, pair, err := s.authority.Refresh(payload.Refresh)
	auditEntry.Subject = sub
	if err != nil {
		auditEntry.Error = err.Error()
		if errors.Is(err, ErrInvalidToken) {
			logger.Warn().Msg("refresh rejected")
			s.metrics.Rejected(metrics.GrantRefresh)
			presenter.ErrorCode(w, r, "Token is invalid or expired", "token_not_valid", http.StatusUnauthorized)
			return
		}
		logger.Error().Err(err).Msg("failed to refresh token")
		presenter.Error(w, r, "token refresh failed", http.StatusInternalServerError)
		return
	}
	s.metrics.Issued(metrics.GrantRefresh)
	auditEntry.Granted = true
	auditEntry.TokenFingerprint = session.Fingerprint(pair.Access)
	auditEntry.Rotated = pair.Refresh != ""
	logger.Debug().Bool("rotated", pair.Refresh != "").Msg("access token refreshed")

	presenter.JSON(w, r, pair, http.StatusOK)
}
