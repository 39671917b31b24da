// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsgate/platform/access"
	"oddsgate/platform/audit"
	"oddsgate/platform/catalog"
)

const (
	allowedIP    = "203.0.113.10"
	restrictedIP = "203.0.113.20"
	strangerIP   = "198.51.100.7"
)

type captureAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureAuditor) Append(r audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureAuditor) find(match func(audit.Record) bool) (audit.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if match(r) {
			return r, true
		}
	}
	return audit.Record{}, false
}

func (c *captureAuditor) last() audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return audit.Record{}
	}
	return c.records[len(c.records)-1]
}

type fakeFeed struct {
	mu       sync.Mutex
	markets  [][2]string
	betfair  [][2]string
	err      error
	roundURL string
}

func (f *fakeFeed) Markets(_ context.Context, sportID, eventID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, [2]string{sportID, eventID})
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"status":"RS_OK","event":"` + eventID + `"}`), nil
}

func (f *fakeFeed) BetfairMarkets(_ context.Context, sportID, eventID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.betfair = append(f.betfair, [2]string{sportID, eventID})
	return json.RawMessage(`{"status":"RS_OK","betfair":true}`), nil
}

func (f *fakeFeed) RoyalRoundResultURL() string { return f.roundURL }

func (f *fakeFeed) marketCalls() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.markets...)
}

type upstreamCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeUpstream records every call and answers with handler, or 200 {"ok":true}.
type fakeUpstream struct {
	*httptest.Server
	mu      sync.Mutex
	calls   []upstreamCall
	handler http.HandlerFunc
}

func newFakeUpstream(t *testing.T, handler http.HandlerFunc) *fakeUpstream {
	u := &fakeUpstream{handler: handler}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.calls = append(u.calls, upstreamCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		u.mu.Unlock()
		if u.handler != nil {
			u.handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *fakeUpstream) recorded() []upstreamCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upstreamCall(nil), u.calls...)
}

func allAPIs() []access.ProviderPermission {
	return []access.ProviderPermission{
		{Provider: providerSportRadar, Enabled: true, APIs: []string{
			"sports-list", "inplay-catalogues", "upcoming-catalogues", "event-counts", "market-odds",
			"srl-inplay", "srl-upcoming", "full-inplay-list", "full-upcoming-list", "virtual-cricket", "virtual-basketball",
		}},
		{Provider: providerKing, Enabled: true, APIs: []string{
			"sports-list", "all-events", "event-results", "fancy-markets", "ball-by-ball", "event-markets",
			"lottery-list", "racing-events",
		}},
		{Provider: providerAura, Enabled: true, APIs: []string{
			"game-lobby", "odds-api", "exchange-lobby", "exchange-event-odds", "past-results", "player-proxy", "html-streaming",
		}},
		{Provider: providerRoyal, Enabled: true, APIs: []string{
			"websocket", "table-list", "market-list", "round-result", "h5live-streaming",
		}},
	}
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	access   *access.MemoryStore
	catalog  *catalog.MemoryStore
	feed     *fakeFeed
	auditor  *captureAuditor
	upstream *fakeUpstream
}

func newTestEnv(t *testing.T, upstream http.HandlerFunc, mutate ...func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		access:   access.NewMemoryStore(),
		catalog:  catalog.NewMemoryStore(),
		feed:     &fakeFeed{},
		auditor:  &captureAuditor{},
		upstream: newFakeUpstream(t, upstream),
	}
	env.access.PutAccount(access.Account{ID: "acct-full", Status: access.AccountActive, Type: access.ModeProduction, Permissions: allAPIs()})
	env.access.PutAccount(access.Account{ID: "acct-odds", Status: access.AccountActive, Type: access.ModeProduction,
		Permissions: []access.ProviderPermission{{Provider: providerSportRadar, Enabled: true, APIs: []string{"market-odds"}}}})
	env.access.PutPolicy(access.AccessPolicy{ID: "p-full", Address: allowedIP, AccountID: "acct-full", Status: access.PolicyActive})
	env.access.PutPolicy(access.AccessPolicy{ID: "p-odds", Address: restrictedIP, AccountID: "acct-odds", Status: access.PolicyActive})

	base := env.upstream.URL
	cfg := DefaultConfig()
	cfg.Providers.Aura.LobbyURL = base + "/aura/lobby"
	cfg.Providers.Aura.OddsURL = base + "/aura/odds/"
	cfg.Providers.Aura.ExchangeURL = base + "/exchange/"
	cfg.Providers.Aura.ResultsURL = base + "/aura/results"
	cfg.Providers.Aura.PlayerURL = base + "/player/"
	cfg.Providers.Aura.StreamURL = "https://stream.example.test/#/auth/"
	cfg.Providers.Aura.StreamOperatorID = "9999"
	cfg.Providers.Aura.UserID = "user-1"
	cfg.Providers.Aura.PlayerToken = "ptok"
	cfg.Providers.Aura.SessionToken = "session"
	cfg.Providers.King.BaseURL = base + "/king/"
	cfg.Providers.Virtual.BaseURL = base
	cfg.Providers.Royal.SocketURL = "ws" + strings.TrimPrefix(base, "http") + "/royal-ws"
	env.feed.roundURL = base + "/royal/round-result-details"
	for _, m := range mutate {
		m(&cfg)
	}

	env.srv = NewServer(Deps{
		Config:  cfg,
		Access:  env.access,
		Catalog: env.catalog,
		Feed:    env.feed,
		Auditor: env.auditor,
		Client:  env.upstream.Client(),
	})
	env.handler = env.srv.Handler()
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) get(path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth_ReportsReadiness(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "starting", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.Equal(t, version, body["version"])

	env.srv.SetReady()
	assert.Equal(t, "healthy", decode(t, env.get("/health", ""))["status"])
}

func TestRoot_AndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Online", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get("/v1/sportradar/sports", strangerIP)
	rec := env.get("/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "oddsgate_gateway_denials_total")
}

func TestAdmission_DeniesAcrossRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		ip     string
		reason string
	}{
		{"unknown address on snapshot route", "/v1/sportradar/sports", strangerIP, "not-whitelisted"},
		{"unknown address on catch-all", "/anything/else", strangerIP, "not-whitelisted"},
		{"provider not granted", "/v1/sports/list", restrictedIP, "provider-disabled"},
		{"api not granted", "/v1/sportradar/sports", restrictedIP, "api-disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(tt.path, tt.ip)
			require.Equal(t, http.StatusForbidden, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["status"])
			assert.Equal(t, "Access Restricted", body["error"])
			assert.Equal(t, tt.reason, body["message"])
			assert.Equal(t, tt.ip, body["ip"])
		})
	}
	assert.Empty(t, env.upstream.recorded())
}

func TestSportRadar_SnapshotReads(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := env.get("/v1/sportradar/srl/inplay", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"RS_OK","events":[],"eventsCount":0}`, rec.Body.String())
	last := env.auditor.last()
	assert.Equal(t, audit.TargetInternal, last.TargetURL)
	assert.Equal(t, audit.OutcomeAllowed, last.Outcome)
	assert.Equal(t, "acct-full", last.ClientID)

	data := `{"status":"RS_OK","inplayEvents":[{"eventId":"sr:match:1"}]}`
	require.NoError(t, env.catalog.PutSnapshot(ctx, catalog.Snapshot{Kind: catalog.KindInplayCatalogue, Key: "sr:sport:1", Data: json.RawMessage(data)}))
	rec = env.get("/v1/sportradar/inplay-catalogues/1", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, data, rec.Body.String())

	rec = env.get("/v1/sportradar/inplay-catalogues/sr:sport:1", allowedIP)
	assert.JSONEq(t, data, rec.Body.String())

	rec = env.get("/v1/sportradar/upcoming-catalogues/1", allowedIP)
	assert.JSONEq(t, `{"status":"RS_OK","errorDescription":"No upcoming events found","upcomingEvents":[]}`, rec.Body.String())

	rec = env.get("/v1/sportradar/full_eventlist/inplay/9", allowedIP)
	assert.JSONEq(t, `{"status":"RS_OK","events":[],"eventsCount":0}`, rec.Body.String())

	require.NoError(t, env.catalog.UpsertSports(ctx, []catalog.Sport{{SportID: "sr:sport:1", SportName: "Soccer", Status: catalog.SportActive}}))
	body := decode(t, env.get("/v1/sportradar/sports", allowedIP))
	assert.Equal(t, catalog.StatusOK, body["status"])
	assert.Len(t, body["sports"], 1)
}

func TestSportRadar_MarketsCachedAndNormalized(t *testing.T) {
	env := newTestEnv(t, nil)

	first := env.get("/v1/sportradar/markets/21/57803781", allowedIP)
	second := env.get("/v1/sportradar/markets/21/57803781", allowedIP)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, [][2]string{{"sr:sport:21", "sr:match:57803781"}}, env.feed.marketCalls())

	rec := env.get("/v1/sportradar/betfair-markets/4/33973450", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]string{{"4", "33973450"}}, env.feed.betfair)
}

func TestSportRadar_MarketsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.feed.err = errors.New("feed down")

	rec := env.get("/v1/sportradar/markets/sr:sport:1/sr:match:9", allowedIP)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to fetch markets", body["error"])
	assert.Equal(t, "feed down", body["details"])
	assert.Equal(t, audit.OutcomeError, env.auditor.last().Outcome)

	env.get("/v1/sportradar/markets/sr:sport:1/sr:match:9", allowedIP)
	assert.Len(t, env.feed.marketCalls(), 2, "failures are not cached")
}

func TestKing_PostConversion(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/v1/sports/ball-by-ball?sportId=4&eventId=9", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.get("/v1/sports/event-markets/4/10", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.get("/v1/sports/event-results/77", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.get("/v1/sports/fancy-markets", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := env.upstream.recorded()
	require.Len(t, calls, 4)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/king/markets/getBallByBallMarket", calls[0].Path)
	assert.JSONEq(t, `{"eventId":"9","sportId":"4","key":"2"}`, calls[0].Body)
	assert.Equal(t, "/king/markets/getMarketsEventList", calls[1].Path)
	assert.JSONEq(t, `{"eventId":"10","sportId":"4","key":"2"}`, calls[1].Body)
	assert.Equal(t, "/king/results/getMarketEventResults", calls[2].Path)
	assert.JSONEq(t, `{"eventId":"77"}`, calls[2].Body)
	assert.JSONEq(t, `{"key":"2"}`, calls[3].Body)
}

func TestKing_MissingIdentifiers(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/v1/sports/event-results", "Please provide eventId"},
		{"/v1/sports/ball-by-ball?sportId=4", "Please provide eventId and sportId"},
		{"/v1/sports/event-markets?eventId=4", "Please provide eventId and sportId"},
	}
	for _, tt := range tests {
		rec := env.get(tt.path, allowedIP)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.path)
		assert.Equal(t, tt.want, decode(t, rec)["error"])
	}
	assert.Empty(t, env.upstream.recorded())
}

func TestKing_ListIsCachedOnlyWhenSuccessful(t *testing.T) {
	var fail sync.Mutex
	failing := true
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fail.Lock()
		defer fail.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"sports":[1,2]}`))
	})

	rec := env.get("/v1/sports/list", allowedIP)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"busy"}`, rec.Body.String())

	fail.Lock()
	failing = false
	fail.Unlock()

	for i := 0; i < 3; i++ {
		rec = env.get("/v1/sports/list", allowedIP)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sports":[1,2]}`, rec.Body.String())
	}
	assert.Len(t, env.upstream.recorded(), 2)
	assert.Equal(t, http.MethodPost, env.upstream.recorded()[0].Method)
}

func TestAura_ProxyRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{
		"/v1/allgamelobby",
		"/v1/auracasino/odds/teen20",
		"/v1/auracasino/exchange/lobby",
		"/v1/auracasino/exchange/odds/ex1/g2",
		"/v1/auracasino/post_results/teen20",
	} {
		rec := env.get(path, allowedIP)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	calls := env.upstream.recorded()
	require.Len(t, calls, 5)
	assert.Equal(t, "/aura/lobby", calls[0].Path)
	assert.Equal(t, "operatorId=8882", calls[0].Query)
	assert.Equal(t, "/aura/odds/teen20", calls[1].Path)
	assert.Equal(t, "/exchange/exchangeGames", calls[2].Path)
	assert.Equal(t, "/exchange/sma-event/ex1/g2", calls[3].Path)
	assert.Equal(t, "/aura/results", calls[4].Path)
	assert.Equal(t, "gameId=teen20", calls[4].Query)
	for _, c := range calls {
		assert.Equal(t, http.MethodGet, c.Method)
	}
}

func TestAura_PlayerRewritesPage(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>p</title></head><body>player</body></html>`))
	})

	rec := env.get("/v1/auracasino/player/teen20", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, `<head><base href="`+env.upstream.URL+`/player/">`)
	assert.Contains(t, page, ".theoplayer-container")
	assert.Less(t, strings.Index(page, ".theoplayer-container"), strings.Index(page, "</head>"))
	assert.Equal(t, "/player/session/teen20", env.upstream.recorded()[0].Path)
}

func TestAura_PlayerUpstreamDown(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) {
		c.Providers.Aura.PlayerURL = "http://127.0.0.1:1/"
	})
	rec := env.get("/v1/auracasino/player/teen20", allowedIP)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Player Proxy Error", decode(t, rec)["error"])
}

func TestAura_StreamPage(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/v1/auracasino/teen20", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `src="https://stream.example.test/#/auth/9999/user-1/ptok/teen20"`)
	assert.Empty(t, env.upstream.recorded())
}

func TestRoyal_SnapshotRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := env.get("/v1/royal/tables", allowedIP)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Tables not synced", decode(t, rec)["error"])

	tables := `{"tables":[{"gameId":"teen20","tableId":"T1"}]}`
	require.NoError(t, env.catalog.PutSnapshot(ctx, catalog.Snapshot{Kind: catalog.KindRoyalTables, Key: catalog.KeyRoyalTables, Data: json.RawMessage(tables)}))
	rec = env.get("/v1/royal/tables", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, tables, rec.Body.String())

	rec = env.get("/v1/royal/markets?gameId=teen20", allowedIP)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing params", decode(t, rec)["error"])

	rec = env.get("/v1/royal/markets?gameId=teen20&tableId=T1", allowedIP)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Markets not synced", decode(t, rec)["error"])

	require.NoError(t, env.catalog.PutSnapshot(ctx, catalog.Snapshot{Kind: catalog.KindRoyalMarkets, Key: catalog.MarketKey("teen20", "T1"), Data: json.RawMessage(`{"markets":[7]}`)}))
	rec = env.get("/v1/royal/markets?gameId=teen20&tableId=T1", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"markets":[7]}`, rec.Body.String())
}

func TestRoyal_RoundResult(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/v1/royal/round-result?gameId=teen20&tableId=T1", allowedIP)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get("/v1/royal/round-result?gameId=teen20&tableId=T1&roundId=R9", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	calls := env.upstream.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/royal/round-result-details", calls[0].Path)
	assert.JSONEq(t, `{"ProviderId":"RGONLINE","gameId":"teen20","TableId":"T1","roundID":"R9"}`, calls[0].Body)
}

func TestRoyal_PlayerAndStream(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) {
		c.Providers.Royal.Player.CID = "690479"
	})

	rec := env.get("/v1/royal/player", allowedIP)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing Required Parameter", decode(t, rec)["error"])

	rec = env.get("/v1/royal/player?stream=abc123", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, nanoPlayerScript)
	assert.Contains(t, page, `"stream":"abc123"`)
	assert.Contains(t, page, `"cid":"690479"`)
	assert.Contains(t, page, h5liveSocket)

	rec = env.get("/v1/royal/stream?stream=abc123", allowedIP)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/v1/royal/player?stream=abc123", rec.Header().Get("Location"))

	rec = env.get("/v1/royal/stream", restrictedIP)
	require.Equal(t, http.StatusOK, rec.Code, "stream needs no provider permission")
	assert.Contains(t, decode(t, rec)["message"], "/v1/royal/player?stream=ID")
}

func TestRoyal_InfoWithoutChannels(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/v1/royal/info", restrictedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"Royal Gaming Shared Proxy","activeConnections":[],"stats":[]}`, rec.Body.String())
}

func TestGeneric_CatchAll(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/some/path", allowedIP)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No generic upstream configured", decode(t, rec)["details"])

	env = newTestEnv(t, nil)
	env.srv.cfg.GenericUpstream = env.upstream.URL + "/base/"
	rec = env.get("/some/path?x=1", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	calls := env.upstream.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/some/path", calls[0].Path)
	assert.Equal(t, "x=1", calls[0].Query)
}

func TestVirtualSports(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/v1/sportradar/virtual-cricket/", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "<title>Virtual Cricket</title>")
	assert.Contains(t, page, "/v1/sportradar/virtual-cricket/live?")
	assert.Contains(t, page, "sport=vci")
	assert.Contains(t, page, "clientid=4418")

	rec = env.get("/v1/sportradar/virtual-basketball/live?clientid=4418&sport=vbi", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.get("/v1/sportradar/virtual-basketball/js/app.js", allowedIP)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := env.upstream.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "/uof-entry-point/stable/dist/index.html", calls[0].Path)
	assert.Equal(t, "clientid=4418&sport=vbi", calls[0].Query)
	assert.Equal(t, "/uof-entry-point/stable/dist/js/app.js", calls[1].Path)
}
