// Package metrics holds the prometheus collectors of gitdm.
// Nil collector structs are valid and record nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gitdm"

// Refresh outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
)

// Session counts refreshes, logouts and request replays.
type Session struct {
	RefreshTotal  *prometheus.CounterVec
	RefreshJoined prometheus.Counter
	LogoutTotal   *prometheus.CounterVec
	ReplayTotal   *prometheus.CounterVec
}

// NewSession creates the collectors and registers them on reg (if non-nil).
func NewSession(reg prometheus.Registerer) *Session {
	m := &Session{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Refresh token exchanges issued, by outcome.",
		}, []string{"outcome"}),
		RefreshJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_joined_total",
			Help:      "Callers that awaited an already running refresh.",
		}),
		LogoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logout_total",
			Help:      "Session teardowns, by reason.",
		}, []string{"reason"}),
		ReplayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "replay_total",
			Help:      "Requests replayed after a 401, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RefreshTotal, m.RefreshJoined, m.LogoutTotal, m.ReplayTotal)
	}
	return m
}

func (m *Session) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Session) Joined() {
	if m == nil {
		return
	}
	m.RefreshJoined.Inc()
}

func (m *Session) Logout(reason string) {
	if m == nil {
		return
	}
	m.LogoutTotal.WithLabelValues(reason).Inc()
}

func (m *Session) Replay(outcome string) {
	if m == nil {
		return
	}
	m.ReplayTotal.WithLabelValues(outcome).Inc()
}
