// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default upstream locations.
const (
	DefaultCatalogURL = "https://scatalog.mysportsfeed.io/api/"
	DefaultFeedURL    = "https://api.mysportsfeed.io/api/"
	DefaultRoyalURL   = "https://api.rgcbe2025.co/api/v1/core/"

	// FeedProvider is the provider id the catalogue endpoints expect.
	FeedProvider = "sportsbook"

	// RoyalProvider and RoyalPartner identify this operator to Royal Gaming.
	RoyalProvider = "RGONLINE"
	RoyalPartner  = "GAPINR"
	RoyalOperator = "rggap"

	// PageSize is the number of items the paginated feeds return per page.
	PageSize = 20
)

// ErrUpstreamStatus is wrapped by errors for non-2xx upstream answers.
var ErrUpstreamStatus = errors.New("catalog: upstream status")

// StatusError is a non-2xx answer.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream answered %d %s", e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// Credentials are the static values every feed request carries.
type Credentials struct {
	OperatorID string `yaml:"operator_id"`
	PartnerID  string `yaml:"partner_id"`
	ProviderID string `yaml:"provider_id"`
	Token      string `yaml:"token"`
}

// Endpoints are the upstream base URLs, each ending in a slash.
type Endpoints struct {
	Catalog string `yaml:"catalog"`
	Feed    string `yaml:"feed"`
	Royal   string `yaml:"royal"`
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Catalog == "" {
		e.Catalog = DefaultCatalogURL
	}
	if e.Feed == "" {
		e.Feed = DefaultFeedURL
	}
	if e.Royal == "" {
		e.Royal = DefaultRoyalURL
	}
	e.Catalog = withSlash(e.Catalog)
	e.Feed = withSlash(e.Feed)
	e.Royal = withSlash(e.Royal)
	return e
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Client calls the catalog feeds. All calls are JSON POSTs.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	creds     Credentials
	royal     Credentials
	timeout   time.Duration
}

// ClientConfig wires a Client.
type ClientConfig struct {
	HTTP        *http.Client
	Endpoints   Endpoints
	Credentials Credentials
	// Royal carries the Royal Gaming token; empty fields take the Royal defaults.
	Royal   Credentials
	Timeout time.Duration
}

// NewClient returns a Client for cfg.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		http:      cfg.HTTP,
		endpoints: cfg.Endpoints.withDefaults(),
		creds:     cfg.Credentials,
		royal:     cfg.Royal,
		timeout:   cfg.Timeout,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if c.royal.OperatorID == "" {
		c.royal.OperatorID = RoyalOperator
	}
	if c.royal.PartnerID == "" {
		c.royal.PartnerID = RoyalPartner
	}
	if c.royal.ProviderID == "" {
		c.royal.ProviderID = RoyalProvider
	}
	return c
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: raw}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("catalog: %s returned invalid JSON", url)
	}
	return raw, nil
}

// Sports fetches the provider's sports list.
func (c *Client) Sports(ctx context.Context) ([]Sport, error) {
	raw, err := c.post(ctx, c.endpoints.Catalog+"v1/core/getsports", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"providerId": c.creds.ProviderID,
		"token":      c.creds.Token,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Sports []Sport `json:"sports"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("catalog: decode sports: %w", err)
	}
	if out.Sports == nil {
		return nil, errors.New("catalog: sports list missing from response")
	}
	return out.Sports, nil
}

// EventCounts fetches the global per-sport event counts.
func (c *Client) EventCounts(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Catalog+"v1/core/sr-events-count", map[string]interface{}{})
}

// Catalogue fetches the inplay or upcoming catalogue of one sport.
func (c *Client) Catalogue(ctx context.Context, sportID string, inplay bool) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Catalog+"v2/core/events-catalogue", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"providerId": FeedProvider,
		"partnerId":  c.creds.PartnerID,
		"isInplay":   inplay,
		"sportId":    sportID,
		"token":      c.creds.Token,
	})
}

// SRLEventsPage fetches one page of simulated reality league events.
func (c *Client) SRLEventsPage(ctx context.Context, inplay bool, page int) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Catalog+"v2/core/getsrlevents", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"providerId": FeedProvider,
		"partnerId":  c.creds.PartnerID,
		"isInPlay":   inplay,
		"token":      c.creds.Token,
		"pageNo":     page,
	})
}

// EventsPage fetches one page of a sport's full event list.
func (c *Client) EventsPage(ctx context.Context, sportID string, inplay bool, page int) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Catalog+"v2/core/getevents", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"providerId": FeedProvider,
		"partnerId":  c.creds.PartnerID,
		"isInplay":   inplay,
		"sportId":    sportID,
		"token":      c.creds.Token,
		"pageNo":     page,
	})
}

// Markets fetches the live markets of one event.
func (c *Client) Markets(ctx context.Context, sportID, eventID string) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Catalog+"v2/core/list-markets", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"partnerId":  c.creds.PartnerID,
		"sportId":    sportID,
		"eventId":    eventID,
		"token":      c.creds.Token,
	})
}

// BetfairMarkets fetches the exchange markets of one event. Ids are sent
// as given.
func (c *Client) BetfairMarkets(ctx context.Context, sportID, eventID string) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Feed+"v1/feed/betfair-market-in-sr", map[string]interface{}{
		"operatorId": c.creds.OperatorID,
		"partnerId":  c.creds.PartnerID,
		"sportId":    sportID,
		"eventId":    eventID,
		"token":      c.creds.Token,
	})
}

// RoyalTables fetches the Royal Gaming table list.
func (c *Client) RoyalTables(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Royal+"gettables", map[string]interface{}{
		"operatorId": c.royal.OperatorID,
		"token":      c.royal.Token,
		"providerId": c.royal.ProviderID,
	})
}

// RoyalMarkets fetches the markets of one Royal Gaming table.
func (c *Client) RoyalMarkets(ctx context.Context, gameID, tableID string) (json.RawMessage, error) {
	return c.post(ctx, c.endpoints.Royal+"getmarkets", map[string]interface{}{
		"token":      c.royal.Token,
		"operatorId": c.royal.OperatorID,
		"partnerId":  c.royal.PartnerID,
		"providerId": c.royal.ProviderID,
		"gameId":     gameID,
		"tableId":    tableID,
	})
}

// RoyalRoundResultURL is the round-result endpoint, proxied per request.
func (c *Client) RoyalRoundResultURL() string {
	return c.endpoints.Royal + "round-result-details"
}
