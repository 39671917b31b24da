// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"oddsgate/platform/admission"
	"oddsgate/platform/catalog"
	"oddsgate/platform/forwarder"
)

const (
	providerSportRadar = "sportradar"
	sportRadarPrefix   = "/v1/sportradar"
	virtualDistPath    = "/uof-entry-point/stable/dist"
)

func (s *Server) sportRadarRoutes() {
	r := s.router.PathPrefix(sportRadarPrefix).Subrouter()

	s.get(r, "/sports", providerSportRadar, "sports-list", s.handleSports)
	s.get(r, "/inplay-catalogues/{sportId}", providerSportRadar, "inplay-catalogues",
		s.snapshotBySport(catalog.KindInplayCatalogue, "Failed to fetch events"))
	s.get(r, "/upcoming-catalogues/{sportId}", providerSportRadar, "upcoming-catalogues",
		s.snapshotBySport(catalog.KindUpcomingCatalogue, "Failed to fetch events"))
	s.get(r, "/event-counts", providerSportRadar, "event-counts",
		s.snapshot(catalog.KindEventCounts, catalog.KeyGlobalCount, "Failed to fetch event counts"))
	s.get(r, "/markets/{sportId}/{eventId}", providerSportRadar, "market-odds", s.handleMarkets)
	s.get(r, "/betfair-markets/{sportId}/{eventId}", providerSportRadar, "market-odds", s.handleBetfairMarkets)
	s.get(r, "/srl/inplay", providerSportRadar, "srl-inplay",
		s.snapshot(catalog.KindSRLInplay, catalog.KeySRLInplay, "Failed to fetch SRL inplay events"))
	s.get(r, "/srl/upcoming", providerSportRadar, "srl-upcoming",
		s.snapshot(catalog.KindSRLUpcoming, catalog.KeySRLUpcoming, "Failed to fetch SRL upcoming events"))
	s.get(r, "/full_eventlist/inplay/{sportId}", providerSportRadar, "full-inplay-list",
		s.snapshotBySport(catalog.KindInplayList, "Failed to fetch Full Inplay List"))
	s.get(r, "/full_eventlist/upcoming/{sportId}", providerSportRadar, "full-upcoming-list",
		s.snapshotBySport(catalog.KindUpcomingList, "Failed to fetch Full Upcoming List"))

	for _, v := range virtualProducts {
		v := v
		r.PathPrefix("/" + v.path).Handler(s.guard.GuardFunc(
			admission.Route{Provider: providerSportRadar, APIID: v.path},
			func(w http.ResponseWriter, req *http.Request) { s.handleVirtual(w, req, v) },
		)).Methods(http.MethodGet)
	}
}

// internalError answers a failed local read with its cause.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(admission.ClientIP(r), r.Header.Get("X-Request-ID"), msg, map[string]interface{}{
		"endpoint": r.URL.Path,
		"error":    err.Error(),
	})
	s.serveInternal(w, r, http.StatusInternalServerError, map[string]string{
		"error":   msg,
		"details": err.Error(),
	})
}

func (s *Server) handleSports(w http.ResponseWriter, r *http.Request) {
	doc, err := catalog.ReadSports(r.Context(), s.catalog)
	if err != nil {
		s.internalError(w, r, "Failed to fetch sports list from DB", err)
		return
	}
	s.serveInternal(w, r, http.StatusOK, doc)
}

func (s *Server) snapshot(kind catalog.Kind, key, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveSnapshot(w, r, kind, key, failure)
	}
}

func (s *Server) snapshotBySport(kind catalog.Kind, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveSnapshot(w, r, kind, catalog.SportKey(mux.Vars(r)["sportId"]), failure)
	}
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request, kind catalog.Kind, key, failure string) {
	data, err := catalog.Read(r.Context(), s.catalog, kind, key)
	if err != nil {
		s.internalError(w, r, failure, err)
		return
	}
	s.serveInternal(w, r, http.StatusOK, data)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sportID := catalog.NormalizeSportID(vars["sportId"])
	eventID := catalog.NormalizeMatchID(vars["eventId"])
	s.serveMarkets(w, r, "sr|"+sportID+"|"+eventID, "Failed to fetch markets",
		func(ctx context.Context) (json.RawMessage, error) {
			return s.feed.Markets(ctx, sportID, eventID)
		})
}

// handleBetfairMarkets passes ids through unchanged; the feed expects bare
// numeric ids here.
func (s *Server) handleBetfairMarkets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sportID, eventID := vars["sportId"], vars["eventId"]
	s.serveMarkets(w, r, "bf|"+sportID+"|"+eventID, "Failed to fetch betfair markets",
		func(ctx context.Context) (json.RawMessage, error) {
			return s.feed.BetfairMarkets(ctx, sportID, eventID)
		})
}

func (s *Server) serveMarkets(w http.ResponseWriter, r *http.Request, key, failure string, fetch func(context.Context) (json.RawMessage, error)) {
	data, err := s.marketsCache.Get(r.Context(), key, fetch)
	if err != nil {
		s.internalError(w, r, failure, err)
		return
	}
	s.serveInternal(w, r, http.StatusOK, data)
}

type virtualProduct struct {
	path  string
	sport string
	title string
}

var virtualProducts = []virtualProduct{
	{path: "virtual-cricket", sport: "vci", title: "Virtual Cricket"},
	{path: "virtual-basketball", sport: "vbi", title: "Virtual Basketball"},
}

var virtualTemplate = template.Must(template.New("virtual").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>body,html{margin:0;padding:0;height:100%;overflow:hidden;background:#000;}</style>
</head>
<body>
<iframe src="{{.Src}}" width="100%" height="100%" frameborder="0" allow="autoplay; encrypted-media; fullscreen" title="{{.Title}} Stream"></iframe>
</body>
</html>
`))

// handleVirtual serves the virtual sports player: a wrapper page at the
// root, the parameterized entry page at /live and provider assets below.
func (s *Server) handleVirtual(w http.ResponseWriter, r *http.Request, v virtualProduct) {
	prefix := sportRadarPrefix + "/" + v.path
	rel := strings.TrimPrefix(r.URL.Path, prefix)
	base := strings.TrimSuffix(s.cfg.Providers.Virtual.BaseURL, "/")

	switch rel {
	case "", "/", "/index.html":
		params := url.Values{}
		params.Set("clientid", s.cfg.Providers.Virtual.ClientID)
		params.Set("lang", "en")
		params.Set("focusmatchid", "13832")
		params.Set("layout", "lmt")
		params.Set("sport", v.sport)
		params.Set("product", v.sport)
		params.Set("environment", "production")

		var buf bytes.Buffer
		err := virtualTemplate.Execute(&buf, struct {
			Title string
			Src   template.URL
		}{Title: v.title, Src: template.URL(prefix + "/live?" + params.Encode())})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Error"})
			return
		}
		serveHTML(w, http.StatusOK, buf.Bytes())

	case "/live":
		s.fwd.Forward(w, r, forwarder.Target{
			Provider: providerSportRadar,
			URL:      base + virtualDistPath + "/index.html?" + r.URL.RawQuery,
		})

	default:
		target := base + virtualDistPath + rel
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		s.fwd.Forward(w, r, forwarder.Target{Provider: providerSportRadar, URL: target})
	}
}
