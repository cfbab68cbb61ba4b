package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/api/presenter"
	"github.com/gitdm/gitdm/internal/audit"
	"github.com/gitdm/gitdm/internal/metrics"
)

// Server is a development implementation of the gitdm API: a token issuer
// plus read-only clinical resources.
type Server struct {
	authority *Authority
	data      *Dataset
	auditor   audit.Auditor
	metrics   *metrics.Server
	gatherer  prometheus.Gatherer
}

type ServerOption func(*Server)

// WithRegistry registers the server's collectors on reg and serves it on
// /metrics.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.metrics = metrics.NewServer(reg)
		s.gatherer = reg
	}
}

// WithAuditor records every token grant decision on a.
func WithAuditor(a audit.Auditor) ServerOption {
	return func(s *Server) {
		s.auditor = a
	}
}

func NewServer(authority *Authority, data *Dataset, opts ...ServerOption) *Server {
	s := &Server{
		authority: authority,
		data:      data,
		auditor:   audit.NoopAuditor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authority returns the token authority of the server.
func (s *Server) Authority() *Authority {
	return s.authority
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	if s.gatherer != nil {
		mux.Handle("GET "+MetricsRoute, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// token routes
	mux.HandleFunc("POST "+APIPrefix+TokenRoute, s.handleToken)
	mux.HandleFunc("POST "+APIPrefix+TokenRefreshRoute, s.handleRefresh)

	// resource routes
	resourceMux := http.NewServeMux()
	resourceMux.HandleFunc("GET "+APIPrefix+AuditRoute+"{$}", s.handleAudit)
	resourceMux.HandleFunc("GET "+APIPrefix+ResourceListRoute+"{$}", s.handleList)
	resourceMux.HandleFunc("POST "+APIPrefix+ResourceListRoute+"{$}", s.handleCreate)
	resourceMux.HandleFunc("GET "+APIPrefix+ResourceDetailRoute+"{$}", s.handleDetail)
	mux.Handle(APIPrefix+"/", middleware.BearerAuth(s.authority, rejectUnauthorized)(resourceMux))

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}

func rejectUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	presenter.ErrorCode(w, r, msg, "token_not_valid", http.StatusUnauthorized)
}
