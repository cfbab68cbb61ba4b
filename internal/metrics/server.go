package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Grant types counted by the dev server.
const (
	GrantPassword = "password"
	GrantRefresh  = "refresh"
)

// Server counts the dev server's token grants and rejections.
type Server struct {
	TokensIssued *prometheus.CounterVec
	AuthRejected *prometheus.CounterVec
}

func NewServer(reg prometheus.Registerer) *Server {
	m := &Server{
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devserver",
			Name:      "tokens_issued_total",
			Help:      "Token pairs issued, by grant type.",
		}, []string{"grant"}),
		AuthRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devserver",
			Name:      "auth_rejected_total",
			Help:      "Rejected credentials or tokens, by grant type.",
		}, []string{"grant"}),
	}
	if reg != nil {
		reg.MustRegister(m.TokensIssued, m.AuthRejected)
	}
	return m
}

func (m *Server) Issued(grant string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(grant).Inc()
}

func (m *Server) Rejected(grant string) {
	if m == nil {
		return
	}
	m.AuthRejected.WithLabelValues(grant).Inc()
}
