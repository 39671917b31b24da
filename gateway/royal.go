// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"oddsgate/platform/admission"
	"oddsgate/platform/audit"
	"oddsgate/platform/catalog"
	"oddsgate/platform/forwarder"
	"oddsgate/platform/multiplexer"
)

const providerRoyal = "royal-gaming"

func (s *Server) royalRoutes() {
	r := s.router.PathPrefix("/v1/royal").Subrouter()

	s.get(r, "/ws/{gameId}/{tableId}", providerRoyal, "websocket", s.handleRoyalSocket)
	s.get(r, "/tables", providerRoyal, "table-list", s.handleRoyalTables)
	s.get(r, "/markets", providerRoyal, "market-list", s.handleRoyalMarkets)
	s.get(r, "/round-result", providerRoyal, "round-result", s.handleRoundResult)
	s.get(r, "/player", providerRoyal, "h5live-streaming", s.handleRoyalPlayer)
	s.get(r, "/info", "", "", s.handleRoyalInfo)
	s.get(r, "/stream", "", "", s.handleRoyalStream)
}

// handleRoyalSocket upgrades an admitted caller and joins it to the shared
// upstream channel of its table.
func (s *Server) handleRoyalSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := multiplexer.ChannelKey{Game: vars["gameId"], Table: vars["tableId"]}
	addr := admission.ClientIP(r)
	requestID := r.Header.Get("X-Request-ID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the caller.
		s.log.Warn(addr, requestID, "websocket upgrade failed", map[string]interface{}{
			"channel": key.String(),
			"error":   err.Error(),
		})
		return
	}

	s.auditor.Append(audit.Record{
		Timestamp:  time.Now().UTC(),
		ClientIP:   addr,
		Endpoint:   r.URL.RequestURI(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		StatusCode: http.StatusSwitchingProtocols,
		ClientID:   admission.AccountID(r.Context()),
		Outcome:    audit.OutcomeAllowed,
		TargetURL:  multiplexer.RoyalUpstream(s.cfg.Providers.Royal.SocketURL)(key),
		RequestID:  requestID,
	})
	if d, ok := admission.FromContext(r.Context()); ok {
		s.recorder.Hit(d.Policy, d.Account)
	}

	s.log.Debug(addr, requestID, "subscriber joining channel", map[string]interface{}{"channel": key.String()})
	if err := s.streams.Join(key, conn); err != nil {
		s.log.Warn(addr, requestID, "channel join failed", map[string]interface{}{
			"channel": key.String(),
			"error":   err.Error(),
		})
	}
}

func (s *Server) handleRoyalTables(w http.ResponseWriter, r *http.Request) {
	s.serveRoyalSnapshot(w, r, catalog.KindRoyalTables, catalog.KeyRoyalTables, "Tables not synced")
}

func (s *Server) handleRoyalMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameID, tableID := q.Get("gameId"), q.Get("tableId")
	if gameID == "" || tableID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing params"})
		return
	}
	s.serveRoyalSnapshot(w, r, catalog.KindRoyalMarkets, catalog.MarketKey(gameID, tableID), "Markets not synced")
}

// serveRoyalSnapshot answers from the synced Royal snapshots through the
// short-lived royal cache.
func (s *Server) serveRoyalSnapshot(w http.ResponseWriter, r *http.Request, kind catalog.Kind, key, missing string) {
	data, err := s.royalCache.Get(r.Context(), string(kind)+"/"+key, func(ctx context.Context) (json.RawMessage, error) {
		return catalog.Read(ctx, s.catalog, kind, key)
	})
	switch {
	case err == nil:
		s.serveInternal(w, r, http.StatusOK, data)
	case errors.Is(err, catalog.ErrNotFound):
		s.serveInternal(w, r, http.StatusNotFound, map[string]string{"error": missing})
	default:
		s.log.Error(admission.ClientIP(r), r.Header.Get("X-Request-ID"), "royal snapshot read failed", map[string]interface{}{
			"kind":  string(kind),
			"key":   key,
			"error": err.Error(),
		})
		s.serveInternal(w, r, http.StatusInternalServerError, map[string]string{"error": "Internal Error"})
	}
}

func (s *Server) handleRoundResult(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameID, tableID, roundID := q.Get("gameId"), q.Get("tableId"), q.Get("roundId")
	if gameID == "" || tableID == "" || roundID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing params"})
		return
	}
	s.fwd.Forward(w, r, forwarder.Target{
		Provider: providerRoyal,
		URL:      s.feed.RoyalRoundResultURL(),
		Method:   http.MethodPost,
		Body: map[string]string{
			"ProviderId": catalog.RoyalProvider,
			"gameId":     gameID,
			"TableId":    tableID,
			"roundID":    roundID,
		},
	})
}

type channelStat struct {
	Table   string `json:"table"`
	Clients int    `json:"clients"`
}

func (s *Server) handleRoyalInfo(w http.ResponseWriter, r *http.Request) {
	info := s.streams.Info()
	keys := make([]string, 0, len(info))
	stats := make([]channelStat, 0, len(info))
	for _, ch := range info {
		keys = append(keys, ch.Key)
		stats = append(stats, channelStat{Table: ch.Key, Clients: ch.Subscribers})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"service":           "Royal Gaming Shared Proxy",
		"activeConnections": keys,
		"stats":             stats,
	})
}

func (s *Server) handleRoyalPlayer(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Missing Required Parameter",
			"message": `Please provide a "stream" ID.`,
		})
		return
	}
	page, err := renderPlayer(s.cfg.Providers.Royal.Player, stream)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Error"})
		return
	}
	serveHTML(w, http.StatusOK, page)
}

func (s *Server) handleRoyalStream(w http.ResponseWriter, r *http.Request) {
	if stream := r.URL.Query().Get("stream"); stream != "" {
		http.Redirect(w, r, "/v1/royal/player?stream="+url.QueryEscape(stream), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Royal Streaming Route. Use /v1/royal/player?stream=ID for the player.",
	})
}
