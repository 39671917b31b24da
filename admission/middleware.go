// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package admission

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"oddsgate/platform/access"
	"oddsgate/platform/audit"
	"oddsgate/platform/shared/logger"
)

// Auditor receives request records without blocking.
type Auditor interface {
	Append(r audit.Record)
}

// Config wires the middleware's collaborators. Recorder, Auditor and
// OnDecision are optional.
type Config struct {
	Controller *Controller
	Recorder   *access.Recorder
	Auditor    Auditor
	Logger     *logger.Logger
	// Support is the contact line shown to denied callers.
	Support string
	// SupportURL is the contact link on the denial page.
	SupportURL string
	// OnDecision observes every decision, for metrics.
	OnDecision func(route Route, d Decision)
}

// Middleware guards handlers with admission decisions.
type Middleware struct {
	cfg Config
	log *logger.Logger
}

// NewMiddleware returns a Middleware using cfg.
func NewMiddleware(cfg Config) *Middleware {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Middleware{cfg: cfg, log: log}
}

// Guard wraps next so it only runs for admitted callers of route.
func (m *Middleware) Guard(route Route, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := ClientIP(r)
		requestID := r.Header.Get("X-Request-ID")

		d, err := m.cfg.Controller.Decide(r.Context(), Request{Address: addr, Method: r.Method, Route: route})
		if m.cfg.OnDecision != nil && (err == nil || d.Reason != "") {
			m.cfg.OnDecision(route, d)
		}

		var denied *Denied
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), d)))
		case errors.As(err, &denied):
			m.deny(w, r, addr, requestID, d)
		default:
			m.log.Error(addr, requestID, "admission lookup failed", map[string]interface{}{
				"endpoint": r.URL.Path,
				"error":    err.Error(),
			})
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"error":   "Service Unavailable",
				"message": "Access could not be verified",
			})
		}
	})
}

// GuardFunc is Guard for a HandlerFunc.
func (m *Middleware) GuardFunc(route Route, next http.HandlerFunc) http.Handler {
	return m.Guard(route, next)
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, addr, requestID string, d Decision) {
	if m.cfg.Recorder != nil {
		m.cfg.Recorder.Blocked(d.Policy, d.Account)
	}
	if m.cfg.Auditor != nil {
		rec := audit.Record{
			Timestamp:  time.Now().UTC(),
			ClientIP:   addr,
			Endpoint:   r.URL.RequestURI(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			StatusCode: http.StatusForbidden,
			Outcome:    audit.OutcomeBlocked,
			Reason:     string(d.Reason),
			RequestID:  requestID,
		}
		if d.Account != nil {
			rec.ClientID = d.Account.ID
		}
		m.cfg.Auditor.Append(rec)
	}

	m.log.Warn(addr, requestID, "request denied", map[string]interface{}{
		"endpoint": r.URL.Path,
		"reason":   string(d.Reason),
	})

	if isUpgrade(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}
	if wantsJSON(r) {
		body := map[string]interface{}{
			"status":  false,
			"error":   "Access Restricted",
			"message": string(d.Reason),
			"ip":      addr,
		}
		if m.cfg.Support != "" {
			body["support"] = m.cfg.Support
		}
		writeJSON(w, http.StatusForbidden, body)
		return
	}
	renderDenied(w, deniedPage{
		Reason:     d.Reason.Description(),
		Code:       string(d.Reason),
		IP:         addr,
		Support:    m.cfg.Support,
		SupportURL: m.cfg.SupportURL,
	})
}

// ClientIP returns the first X-Forwarded-For hop, falling back to the peer
// address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r) || r.Header.Get("Sec-WebSocket-Key") != ""
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		!strings.Contains(r.UserAgent(), "Mozilla")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
