// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package forwarder performs a single bounded upstream call on behalf of an
// admitted caller and relays the buffered result.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"oddsgate/platform/access"
	"oddsgate/platform/admission"
	"oddsgate/platform/audit"
	"oddsgate/platform/shared/logger"
)

// DefaultTimeout bounds every upstream call.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUpstreamTimeout means the upstream did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamTransport means the call failed before a response arrived.
	ErrUpstreamTransport = errors.New("upstream transport error")
)

// Target describes the upstream side of one exchange.
type Target struct {
	Provider string
	URL      string
	// Method overrides the inbound method, e.g. GET routes served by POST upstreams.
	Method string
	// Body replaces the inbound body for non-GET upstream calls.
	Body interface{}
}

// Response is a fully buffered upstream answer.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
}

// StatusError carries a non-2xx upstream answer so callers that only trust
// successful payloads can still relay it verbatim.
type StatusError struct {
	Response *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream answered %d", e.Response.Status)
}

// Config wires a Forwarder. Everything except Client is optional.
type Config struct {
	Client   *http.Client
	Timeout  time.Duration
	Recorder *access.Recorder
	Auditor  admission.Auditor
	Logger   *logger.Logger
	// OnResult observes every exchange, for metrics.
	OnResult func(provider string, status int, latency time.Duration)
}

// Forwarder relays requests to fixed upstream URLs.
type Forwarder struct {
	client   *http.Client
	timeout  time.Duration
	recorder *access.Recorder
	auditor  admission.Auditor
	log      *logger.Logger
	onResult func(string, int, time.Duration)
}

// NewClient returns an HTTP client tuned for many concurrent upstream calls.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DefaultTimeout,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			MaxIdleConns:          1000,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       15 * time.Second,
			TLSHandshakeTimeout:   DefaultTimeout,
			ExpectContinueTimeout: time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

// New returns a Forwarder using cfg.
func New(cfg Config) *Forwarder {
	f := &Forwarder{
		client:   cfg.Client,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		auditor:  cfg.Auditor,
		log:      cfg.Logger,
		onResult: cfg.OnResult,
	}
	if f.client == nil {
		f.client = NewClient()
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.log == nil {
		f.log = logger.Nop()
	}
	return f
}

// Timeout returns the per-call bound.
func (f *Forwarder) Timeout() time.Duration { return f.timeout }

var strippedRequestHeaders = []string{
	"Host", "Content-Length", "Connection", "Keep-Alive", "Proxy-Connection",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Accept-Encoding",
}

// Outbound is the upstream request state captured from an inbound request.
// It holds no reference to the inbound request, so it can be sent after that
// request's handler has returned.
type Outbound struct {
	Method string
	Header http.Header
	Body   []byte
}

// Prepare captures the method, headers and body of the upstream call for
// inbound r. It must run while r is still being served.
func Prepare(r *http.Request, t Target) (Outbound, error) {
	o := Outbound{Method: t.Method, Header: r.Header.Clone()}
	if o.Method == "" {
		o.Method = r.Method
	}
	for _, h := range strippedRequestHeaders {
		o.Header.Del(h)
	}
	if o.Method != http.MethodGet && o.Method != http.MethodHead {
		body, err := outboundBody(r, t)
		if err != nil {
			return Outbound{}, fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
		}
		o.Body = body
	}
	return o, nil
}

// Do performs the upstream call for inbound r. The returned error wraps
// ErrUpstreamTimeout or ErrUpstreamTransport; non-2xx answers are not errors.
func (f *Forwarder) Do(ctx context.Context, r *http.Request, t Target) (*Response, error) {
	resp, _, err := f.do(ctx, r, t)
	return resp, err
}

func (f *Forwarder) do(ctx context.Context, r *http.Request, t Target) (*Response, []byte, error) {
	o, err := Prepare(r, t)
	if err != nil {
		return nil, nil, err
	}
	resp, err := f.Send(ctx, t, o)
	return resp, o.Body, err
}

// Send performs a prepared call to t.URL, bounded by the forwarder timeout.
func (f *Forwarder) Send(ctx context.Context, t Target, o Outbound) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	out, err := http.NewRequestWithContext(ctx, o.Method, t.URL, bytes.NewReader(o.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
	}
	out.Header = o.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if o.Body != nil {
		out.Header.Set("Content-Type", "application/json")
	} else {
		out.Body = http.NoBody
	}

	upstream, err := f.client.Do(out)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer upstream.Body.Close()

	body, err := io.ReadAll(upstream.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}

	return &Response{
		Status:  upstream.StatusCode,
		Header:  upstream.Header,
		Body:    body,
		Latency: time.Since(start),
	}, nil
}

func outboundBody(r *http.Request, t Target) ([]byte, error) {
	if t.Body != nil {
		if raw, ok := t.Body.([]byte); ok {
			return raw, nil
		}
		return json.Marshal(t.Body)
	}
	if r.Body == nil || r.Body == http.NoBody {
		return []byte("{}"), nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}

func classify(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
}

// Forward performs the call and writes the outcome to w. Audit and counter
// updates are queued and never delay the response.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, t Target) {
	resp, reqBody, err := f.do(r.Context(), r, t)
	f.respond(w, r, t, resp, reqBody, err)
}

// Respond writes an already obtained result, e.g. one served from a cache,
// with the same relaying, auditing and counting as Forward.
func (f *Forwarder) Respond(w http.ResponseWriter, r *http.Request, t Target, resp *Response, err error) {
	var se *StatusError
	if errors.As(err, &se) {
		resp, err = se.Response, nil
	}
	f.respond(w, r, t, resp, nil, err)
}

func (f *Forwarder) respond(w http.ResponseWriter, r *http.Request, t Target, resp *Response, reqBody []byte, err error) {
	addr := admission.ClientIP(r)
	requestID := r.Header.Get("X-Request-ID")
	d, _ := admission.FromContext(r.Context())

	rec := audit.Record{
		Timestamp: time.Now().UTC(),
		ClientIP:  addr,
		Endpoint:  r.URL.RequestURI(),
		Method:    r.Method,
		UserAgent: r.UserAgent(),
		ClientID:  admission.AccountID(r.Context()),
		TargetURL: t.URL,
		RequestID: requestID,
	}
	if len(reqBody) > 0 {
		rec.RequestBody = audit.DecodeBody(reqBody)
	}

	switch {
	case err == nil:
		copyResponseHeaders(w.Header(), resp.Header)
		SetCORS(w.Header())
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)

		rec.StatusCode = resp.Status
		rec.ResponseTime = resp.Latency.Milliseconds()
		rec.Outcome = audit.OutcomeAllowed
		rec.ResponseBody = audit.DecodeBody(resp.Body)
		if f.recorder != nil {
			f.recorder.Hit(d.Policy, d.Account)
		}

	case errors.Is(err, ErrUpstreamTimeout):
		rec.StatusCode = http.StatusGatewayTimeout
		rec.ResponseTime = f.timeout.Milliseconds()
		rec.Outcome = audit.OutcomeError
		f.log.Warn(addr, requestID, "upstream timed out", map[string]interface{}{"target": t.URL, "provider": t.Provider})
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error":   "Gateway Timeout",
			"message": "Upstream server took too long to respond",
		})

	default:
		rec.StatusCode = http.StatusBadGateway
		rec.Outcome = audit.OutcomeError
		f.log.Error(addr, requestID, "upstream call failed", map[string]interface{}{
			"target":   t.URL,
			"provider": t.Provider,
			"error":    err.Error(),
		})
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "Bad Gateway",
			"details": err.Error(),
		})
	}

	if f.onResult != nil {
		f.onResult(t.Provider, rec.StatusCode, time.Duration(rec.ResponseTime)*time.Millisecond)
	}
	if f.auditor != nil {
		f.auditor.Append(rec)
	}
}

var droppedResponseHeaders = map[string]bool{
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
	"Content-Length":    true,
	"Connection":        true,
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if droppedResponseHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// SetCORS adds the permissive CORS headers every relayed response carries.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	SetCORS(w.Header())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
