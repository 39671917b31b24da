// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"oddsgate/platform/forwarder"
)

const providerAura = "aura-casino"

func (s *Server) auraRoutes() {
	r := s.router
	s.get(r, "/v1/allgamelobby", providerAura, "game-lobby", s.handleGameLobby)
	s.get(r, "/v1/auracasino/odds/{gameId}", providerAura, "odds-api", s.handleAuraOdds)
	s.get(r, "/v1/auracasino/exchange/lobby", providerAura, "exchange-lobby", s.handleExchangeLobby)
	s.get(r, "/v1/auracasino/exchange/odds/{exchangeId}/{gameId}", providerAura, "exchange-event-odds", s.handleExchangeOdds)
	s.get(r, "/v1/auracasino/post_results/{gameId}", providerAura, "past-results", s.handlePastResults)
	s.get(r, "/v1/auracasino/player/{gameId}", providerAura, "player-proxy", s.handleAuraPlayer)
	s.get(r, "/v1/auracasino/{gameId}", providerAura, "html-streaming", s.handleAuraStream)
}

// forwardCached serves t through the proxy hot cache. Only 2xx answers are
// stored; anything else is relayed once and fetched again next time. A
// shared fetch may outlive this handler, so it only sees state captured by
// forwarder.Prepare.
func (s *Server) forwardCached(w http.ResponseWriter, r *http.Request, t forwarder.Target) {
	out, err := forwarder.Prepare(r, t)
	if err != nil {
		s.fwd.Respond(w, r, t, nil, err)
		return
	}
	resp, err := s.proxyCache.Get(r.Context(), out.Method+" "+t.URL, func(ctx context.Context) (*forwarder.Response, error) {
		resp, err := s.fwd.Send(ctx, t, out)
		if err != nil {
			return nil, err
		}
		if resp.Status < 200 || resp.Status >= 300 {
			return nil, &forwarder.StatusError{Response: resp}
		}
		return resp, nil
	})
	s.fwd.Respond(w, r, t, resp, err)
}

func (s *Server) handleGameLobby(w http.ResponseWriter, r *http.Request) {
	aura := s.cfg.Providers.Aura
	target := aura.LobbyURL + "?operatorId=" + url.QueryEscape(aura.OperatorID)
	s.forwardCached(w, r, forwarder.Target{Provider: providerAura, URL: target, Method: http.MethodGet})
}

func (s *Server) handleAuraOdds(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]
	s.fwd.Forward(w, r, forwarder.Target{
		Provider: providerAura,
		URL:      joinURL(s.cfg.Providers.Aura.OddsURL, url.PathEscape(gameID)),
	})
}

func (s *Server) handleExchangeLobby(w http.ResponseWriter, r *http.Request) {
	s.fwd.Forward(w, r, forwarder.Target{
		Provider: providerAura,
		URL:      joinURL(s.cfg.Providers.Aura.ExchangeURL, "exchangeGames"),
	})
}

func (s *Server) handleExchangeOdds(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.fwd.Forward(w, r, forwarder.Target{
		Provider: providerAura,
		URL: joinURL(s.cfg.Providers.Aura.ExchangeURL,
			"sma-event/"+url.PathEscape(vars["exchangeId"])+"/"+url.PathEscape(vars["gameId"])),
	})
}

func (s *Server) handlePastResults(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]
	s.fwd.Forward(w, r, forwarder.Target{
		Provider: providerAura,
		URL:      s.cfg.Providers.Aura.ResultsURL + "?gameId=" + url.QueryEscape(gameID),
	})
}

const playerCSS = `<style>
body{background-color:#000!important;overflow:hidden!important;margin:0!important;padding:0!important}
.theo-menu-container,.theo-context-menu,.theo-top-controlbar,.theo-related,.theo-social,.vjs-poster,
.unwanted-clutter,.theo-subtitle-options-menu-item,.vjs-default-button,.theo-settings-control-button,
.vjs-caption-settings,.theo-settings-control-menu,.vjs-text-track-settings{display:none!important}
.theoplayer-container{width:100vw!important;height:100vh!important;max-width:100%!important;max-height:100%!important}
</style>`

// handleAuraPlayer relays the provider's player page with a base href so its
// relative assets still load from the provider.
func (s *Server) handleAuraPlayer(w http.ResponseWriter, r *http.Request) {
	aura := s.cfg.Providers.Aura
	gameID := mux.Vars(r)["gameId"]
	target := forwarder.Target{
		Provider: providerAura,
		URL:      joinURL(aura.PlayerURL, url.PathEscape(aura.SessionToken)+"/"+url.PathEscape(gameID)),
		Method:   http.MethodGet,
	}

	resp, err := s.fwd.Do(r.Context(), r, target)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "Player Proxy Error",
			"details": err.Error(),
		})
		return
	}
	serveHTML(w, http.StatusOK, rewritePlayerPage(resp.Body, aura.PlayerURL))
}

func rewritePlayerPage(page []byte, base string) []byte {
	baseTag := `<head><base href="` + template.HTMLEscapeString(withTrailingSlash(base)) + `">`
	page = bytes.Replace(page, []byte("<head>"), []byte(baseTag), 1)
	return bytes.Replace(page, []byte("</head>"), []byte(playerCSS+"</head>"), 1)
}

var auraStreamTemplate = template.Must(template.New("aura-stream").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Aura Casino Streaming</title>
<style>
body,html{margin:0;padding:0;height:100%;width:100%;overflow:hidden;background-color:#000}
iframe{border:none;width:100%;height:100%}
</style>
</head>
<body>
<iframe src="{{.}}" allowfullscreen allow="autoplay; encrypted-media"></iframe>
</body>
</html>
`))

// handleAuraStream wraps the provider's streaming page in an iframe so the
// session path never shows in the caller's address bar.
func (s *Server) handleAuraStream(w http.ResponseWriter, r *http.Request) {
	aura := s.cfg.Providers.Aura
	gameID := mux.Vars(r)["gameId"]
	src := withTrailingSlash(aura.StreamURL) + strings.Join([]string{
		url.PathEscape(aura.StreamOperatorID),
		url.PathEscape(aura.UserID),
		url.PathEscape(aura.PlayerToken),
		url.PathEscape(gameID),
	}, "/")

	var buf bytes.Buffer
	if err := auraStreamTemplate.Execute(&buf, template.URL(src)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Error"})
		return
	}
	serveHTML(w, http.StatusOK, buf.Bytes())
}

func withTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func joinURL(base, path string) string {
	return withTrailingSlash(base) + strings.TrimPrefix(path, "/")
}
