// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"oddsgate/platform/access"
	"oddsgate/platform/admission"
	"oddsgate/platform/audit"
	"oddsgate/platform/catalog"
	"oddsgate/platform/forwarder"
	"oddsgate/platform/hotcache"
	"oddsgate/platform/multiplexer"
	"oddsgate/platform/shared/logger"
)

const serviceName = "oddsgate-gateway"

// Hot cache lifetimes per route family.
const (
	proxyCacheTTL  = 60 * time.Second
	royalCacheTTL  = 30 * time.Second
	marketCacheTTL = time.Second

	royalCacheEntries = 1000
)

// MarketFeed is the live part of the catalog client used by request handlers.
type MarketFeed interface {
	Markets(ctx context.Context, sportID, eventID string) (json.RawMessage, error)
	BetfairMarkets(ctx context.Context, sportID, eventID string) (json.RawMessage, error)
	RoyalRoundResultURL() string
}

// Deps are the collaborators a Server is built from. Access, Catalog and Feed
// are required; the rest fall back to no-op or default implementations.
type Deps struct {
	Config  Config
	Access  access.Store
	Catalog catalog.Store
	Feed    MarketFeed
	Auditor admission.Auditor
	// Hub serves admin log observers on this process.
	Hub    *audit.Hub
	Client *http.Client
	Dialer *websocket.Dialer
	Logger *logger.Logger
}

// Server owns the router and every per-process resource behind it.
type Server struct {
	cfg      Config
	log      *logger.Logger
	router   *mux.Router
	guard    *admission.Middleware
	fwd      *forwarder.Forwarder
	recorder *access.Recorder
	auditor  admission.Auditor
	catalog  catalog.Store
	feed     MarketFeed
	streams  *multiplexer.Multiplexer
	hub      *audit.Hub
	client   *http.Client
	upgrader websocket.Upgrader

	proxyCache   *hotcache.Cache[*forwarder.Response]
	royalCache   *hotcache.Cache[json.RawMessage]
	marketsCache *hotcache.Cache[json.RawMessage]

	ready atomic.Bool
}

type discardAuditor struct{}

func (discardAuditor) Append(audit.Record) {}

// NewServer wires the router and its collaborators.
func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	auditor := d.Auditor
	if auditor == nil {
		auditor = discardAuditor{}
	}
	hub := d.Hub
	if hub == nil {
		hub = audit.NewHub(log.With("admin-hub"))
	}
	client := d.Client
	if client == nil {
		client = forwarder.NewClient()
	}

	recorder := access.NewRecorder(d.Access, log.With("access-recorder"))
	s := &Server{
		cfg:      d.Config,
		log:      log,
		router:   mux.NewRouter(),
		recorder: recorder,
		auditor:  auditor,
		catalog:  d.Catalog,
		feed:     d.Feed,
		hub:      hub,
		client:   client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.guard = admission.NewMiddleware(admission.Config{
		Controller: admission.NewController(d.Access),
		Recorder:   recorder,
		Auditor:    auditor,
		Logger:     log.With("admission"),
		Support:    d.Config.Support,
		SupportURL: d.Config.SupportURL,
		OnDecision: observeDecision,
	})
	s.fwd = forwarder.New(forwarder.Config{
		Client:   client,
		Timeout:  d.Config.UpstreamTimeout,
		Recorder: recorder,
		Auditor:  auditor,
		Logger:   log.With("forwarder"),
		OnResult: observeUpstream,
	})
	s.streams = multiplexer.New(multiplexer.Config{
		UpstreamURL: multiplexer.RoyalUpstream(d.Config.Providers.Royal.SocketURL),
		Dialer:      d.Dialer,
		Welcome:     multiplexer.JoinedWelcome,
		Logger:      log.With("multiplexer"),
		OnChange:    observeChannels,
	})

	s.proxyCache = hotcache.New[*forwarder.Response]("proxy", proxyCacheTTL, hotcache.WithObserver(observeCache))
	s.royalCache = hotcache.New[json.RawMessage]("royal", royalCacheTTL,
		hotcache.WithMaxEntries(royalCacheEntries), hotcache.WithObserver(observeCache))
	s.marketsCache = hotcache.New[json.RawMessage]("markets", marketCacheTTL, hotcache.WithObserver(observeCache))

	s.routes()
	return s
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return s.requestContext(c.Handler(s.router))
}

// Router exposes the router for tests and extra registrations.
func (s *Server) Router() *mux.Router { return s.router }

// SetReady flips /health from starting to healthy.
func (s *Server) SetReady() { s.ready.Store(true) }

// Caches returns the hot caches so the caller can sweep them.
func (s *Server) Caches() []hotcache.Sweeper {
	return []hotcache.Sweeper{s.proxyCache, s.royalCache, s.marketsCache}
}

// Close tears down live channels and waits for queued counter updates.
func (s *Server) Close() {
	s.streams.Close()
	s.recorder.Wait()
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/admin/logs/stream", s.handleLogStream).Methods(http.MethodGet)

	s.auraRoutes()
	s.kingRoutes()
	s.royalRoutes()
	s.sportRadarRoutes()

	// Everything else is relayed to the generic upstream, if any.
	r.PathPrefix("/").Handler(s.guard.GuardFunc(admission.Route{}, s.handleGeneric))

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)
}

// get registers a guarded GET route tagged with provider and API id.
func (s *Server) get(r *mux.Router, path, provider, apiID string, h http.HandlerFunc) *mux.Route {
	return r.Handle(path, s.guard.GuardFunc(admission.Route{Provider: provider, APIID: apiID}, h)).
		Methods(http.MethodGet)
}

// serveInternal answers from local state and audits the exchange with the
// internal target. Successful answers count as hits for the caller.
func (s *Server) serveInternal(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	writeJSON(w, status, body)

	rec := audit.Record{
		Timestamp:    time.Now().UTC(),
		ClientIP:     admission.ClientIP(r),
		Endpoint:     r.URL.RequestURI(),
		Method:       r.Method,
		UserAgent:    r.UserAgent(),
		StatusCode:   status,
		ResponseTime: time.Since(requestStart(r)).Milliseconds(),
		ClientID:     admission.AccountID(r.Context()),
		Outcome:      audit.OutcomeAllowed,
		TargetURL:    audit.TargetInternal,
		RequestID:    r.Header.Get("X-Request-ID"),
	}
	if status >= http.StatusBadRequest {
		rec.Outcome = audit.OutcomeError
	}
	s.auditor.Append(rec)

	if d, ok := admission.FromContext(r.Context()); ok {
		s.recorder.Hit(d.Policy, d.Account)
	}
}

// serveHTML writes a generated page. Pages are not audited individually.
func serveHTML(w http.ResponseWriter, status int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	forwarder.SetCORS(w.Header())
	w.WriteHeader(status)
	_, _ = w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	forwarder.SetCORS(w.Header())
	w.WriteHeader(status)
	if raw, ok := v.(json.RawMessage); ok {
		_, _ = w.Write(raw)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
