// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"net/http"

	"github.com/gorilla/mux"

	"oddsgate/platform/forwarder"
)

const providerKing = "king-exchange"

// kingKey is the fixed partner key most exchange calls carry.
var kingKey = map[string]string{"key": "2"}

func (s *Server) kingRoutes() {
	r := s.router.PathPrefix("/v1/sports").Subrouter()

	s.get(r, "/list", providerKing, "sports-list", s.kingCached("sports/sportsList", nil))
	s.get(r, "/all-events", providerKing, "all-events", s.kingCached("market/matchodds/allEventsList", kingKey))
	s.get(r, "/fancy-markets", providerKing, "fancy-markets", s.kingPost("markets/fancyMarketList", kingKey))
	s.get(r, "/lottery-list", providerKing, "lottery-list", s.kingPost("sports/lotterySportsList", kingKey))
	s.get(r, "/racing-events", providerKing, "racing-events", s.kingPost("events/racingEventsList", kingKey))

	for _, path := range []string{"/event-results/{eventId}", "/event-results"} {
		s.get(r, path, providerKing, "event-results", s.handleEventResults)
	}
	for _, path := range []string{"/ball-by-ball/{sportId}/{eventId}", "/ball-by-ball"} {
		s.get(r, path, providerKing, "ball-by-ball", s.kingEvent("markets/getBallByBallMarket"))
	}
	for _, path := range []string{"/event-markets/{sportId}/{eventId}", "/event-markets"} {
		s.get(r, path, providerKing, "event-markets", s.kingEvent("markets/getMarketsEventList"))
	}
}

func (s *Server) kingTarget(path string, body interface{}) forwarder.Target {
	t := forwarder.Target{
		Provider: providerKing,
		URL:      joinURL(s.cfg.Providers.King.BaseURL, path),
		Method:   http.MethodPost,
		Body:     body,
	}
	if body == nil {
		// The sports list is a bodiless POST.
		t.Body = []byte{}
	}
	return t
}

func (s *Server) kingCached(path string, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.forwardCached(w, r, s.kingTarget(path, body))
	}
}

func (s *Server) kingPost(path string, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.fwd.Forward(w, r, s.kingTarget(path, body))
	}
}

// param reads a route variable, falling back to the query string.
func param(r *http.Request, name string) string {
	if v := mux.Vars(r)[name]; v != "" {
		return v
	}
	return r.URL.Query().Get(name)
}

func (s *Server) handleEventResults(w http.ResponseWriter, r *http.Request) {
	eventID := param(r, "eventId")
	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Please provide eventId"})
		return
	}
	s.fwd.Forward(w, r, s.kingTarget("results/getMarketEventResults", map[string]string{"eventId": eventID}))
}

func (s *Server) kingEvent(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sportID, eventID := param(r, "sportId"), param(r, "eventId")
		if sportID == "" || eventID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Please provide eventId and sportId"})
			return
		}
		s.fwd.Forward(w, r, s.kingTarget(path, map[string]string{
			"eventId": eventID,
			"sportId": sportID,
			"key":     "2",
		}))
	}
}
