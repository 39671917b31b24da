// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oddsgate/platform/admission"
	"oddsgate/platform/forwarder"
)

const version = "1.0.0"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "Online",
		"service": "OddsGate Provider Gateway",
	})
}

// handleHealth answers immediately, reporting starting until the server is
// marked ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"service":   serviceName,
		"timestamp": time.Now().UTC(),
		"version":   version,
	})
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// handleGeneric relays unmatched routes to the configured upstream, keeping
// the inbound path and query.
func (s *Server) handleGeneric(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GenericUpstream == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Not Found",
			"details": "No generic upstream configured",
		})
		return
	}
	base, err := url.Parse(s.cfg.GenericUpstream)
	if err != nil {
		s.log.Error(admission.ClientIP(r), r.Header.Get("X-Request-ID"), "invalid generic upstream", map[string]interface{}{
			"upstream": s.cfg.GenericUpstream,
			"error":    err.Error(),
		})
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Bad Gateway", "details": err.Error()})
		return
	}
	ref, err := url.Parse(r.URL.RequestURI())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad Request", "details": err.Error()})
		return
	}
	s.fwd.Forward(w, r, forwarder.Target{Provider: "generic", URL: base.ResolveReference(ref).String()})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Not Found",
		"message": fmt.Sprintf("Route %s:%s not found", r.Method, r.URL.RequestURI()),
	})
}
