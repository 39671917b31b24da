// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsgate/platform/access"
	"oddsgate/platform/admission"
	"oddsgate/platform/audit"
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

func (c *captureAuditor) last(t *testing.T) audit.Record {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.records)
	return c.records[len(c.records)-1]
}

func TestForward_RelaysUpstreamResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Connection"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "fawk")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"odds":[1.5,2.25]}`)
	}))
	defer upstream.Close()

	f := New(Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/auracasino/odds/42", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()

	f.Forward(rec, req, Target{Provider: "aura-casino", URL: upstream.URL + "/api/exchange/odds/42"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"odds":[1.5,2.25]}`, rec.Body.String())
	assert.Equal(t, "fawk", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestForward_PassesUpstreamErrorsThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	defer upstream.Close()

	auditor := &captureAuditor{}
	f := New(Config{Auditor: auditor})
	rec := httptest.NewRecorder()
	f.Forward(rec, httptest.NewRequest(http.MethodGet, "/v1/royal/round-result", nil), Target{URL: upstream.URL})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	r := auditor.last(t)
	assert.Equal(t, http.StatusTeapot, r.StatusCode)
	assert.Equal(t, "short and stout", r.ResponseBody)
}

func TestForward_MethodAndBodyOverride(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		inbound  string
		wantBody string
	}{
		{name: "fixed body", body: map[string]string{"key": "2"}, wantBody: `{"key":"2"}`},
		{name: "raw body", body: []byte(`{"eventId":"9"}`), wantBody: `{"eventId":"9"}`},
		{name: "empty inbound body becomes object", wantBody: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotType, gotBody string
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotType = r.Header.Get("Content-Type")
				b, _ := io.ReadAll(r.Body)
				gotBody = string(b)
				_, _ = io.WriteString(w, `{"status":"ok"}`)
			}))
			defer upstream.Close()

			auditor := &captureAuditor{}
			f := New(Config{Auditor: auditor})
			rec := httptest.NewRecorder()
			f.Forward(rec, httptest.NewRequest(http.MethodGet, "/v1/sports/fancy-markets", nil),
				Target{URL: upstream.URL, Method: http.MethodPost, Body: tt.body})

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, http.MethodPost, gotMethod)
			assert.Equal(t, "application/json", gotType)
			assert.JSONEq(t, tt.wantBody, gotBody)
			assert.NotNil(t, auditor.last(t).RequestBody)
		})
	}
}

func TestForward_TimeoutAnswers504(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	auditor := &captureAuditor{}
	f := New(Config{Timeout: 150 * time.Millisecond, Auditor: auditor})
	rec := httptest.NewRecorder()

	start := time.Now()
	f.Forward(rec, httptest.NewRequest(http.MethodGet, "/v1/auracasino/exchange/lobby", nil), Target{URL: upstream.URL})
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, elapsed, 2*time.Second)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Gateway Timeout", body["error"])
	assert.Equal(t, "Upstream server took too long to respond", body["message"])
	assert.Equal(t, audit.OutcomeError, auditor.last(t).Outcome)
}

func TestForward_TransportFailureAnswers502(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	f := New(Config{})
	rec := httptest.NewRecorder()
	f.Forward(rec, httptest.NewRequest(http.MethodGet, "/v1/sports/list", nil), Target{URL: url})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bad Gateway", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestDo_ClassifiesErrors(t *testing.T) {
	f := New(Config{Timeout: 100 * time.Millisecond})
	_, err := f.Do(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), Target{URL: "http://127.0.0.1:1/"})
	assert.ErrorIs(t, err, ErrUpstreamTransport)
	assert.Equal(t, DefaultTimeout, New(Config{}).Timeout())
}

func TestForward_CountsAndAuditsAdmittedCaller(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"RS_OK"}`)
	}))
	defer upstream.Close()

	store := access.NewMemoryStore()
	store.PutAccount(access.Account{ID: "acc", Status: access.AccountActive, Type: access.ModeProduction})
	store.PutPolicy(access.AccessPolicy{ID: "pol", Address: "203.0.113.9", AccountID: "acc", Status: access.PolicyActive})
	policy, _ := store.FindActivePolicy(context.Background(), "203.0.113.9")
	account, _ := store.FindAccount(context.Background(), "acc")

	recorder := access.NewRecorder(store, nil)
	auditor := &captureAuditor{}
	var observed []int
	f := New(Config{
		Recorder: recorder,
		Auditor:  auditor,
		OnResult: func(provider string, status int, _ time.Duration) {
			assert.Equal(t, "sportradar", provider)
			observed = append(observed, status)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sportradar/markets/1/2?x=1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("User-Agent", "bookmaker/1.0")
	ctx := admission.NewContext(req.Context(), admission.Decision{Allowed: true, Policy: policy, Account: account})
	rec := httptest.NewRecorder()

	f.Forward(rec, req.WithContext(ctx), Target{Provider: "sportradar", URL: upstream.URL})
	recorder.Wait()

	a, _ := store.FindAccount(context.Background(), "acc")
	assert.Equal(t, int64(1), a.HitsToday)
	assert.Equal(t, int64(1), a.MonthlyHits)
	p, _ := store.FindActivePolicy(context.Background(), "203.0.113.9")
	assert.Equal(t, int64(1), p.HitsToday)

	r := auditor.last(t)
	assert.Equal(t, "203.0.113.9", r.ClientIP)
	assert.Equal(t, "/v1/sportradar/markets/1/2?x=1", r.Endpoint)
	assert.Equal(t, "acc", r.ClientID)
	assert.Equal(t, "req-1", r.RequestID)
	assert.Equal(t, "bookmaker/1.0", r.UserAgent)
	assert.Equal(t, audit.OutcomeAllowed, r.Outcome)
	assert.Equal(t, upstream.URL, r.TargetURL)
	assert.Equal(t, map[string]interface{}{"status": "RS_OK"}, r.ResponseBody)
	assert.Equal(t, []int{http.StatusOK}, observed)
}

func TestRespond_UnwrapsStatusError(t *testing.T) {
	f := New(Config{})
	resp := &Response{Status: http.StatusServiceUnavailable, Header: http.Header{"Content-Type": {"text/plain"}}, Body: []byte("busy")}
	rec := httptest.NewRecorder()

	f.Respond(rec, httptest.NewRequest(http.MethodGet, "/v1/sports/list", nil), Target{}, nil, &StatusError{Response: resp})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "busy", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestPrepare_DetachesFromInboundRequest(t *testing.T) {
	var gotAuth, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/v1/sports/list", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Connection", "keep-alive")
	target := Target{URL: upstream.URL, Method: http.MethodPost, Body: map[string]string{"key": "2"}}

	out, err := Prepare(req, target)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, out.Method)
	assert.Empty(t, out.Header.Get("Connection"))

	// The inbound request is done with before the call is sent.
	req.Header.Set("Authorization", "Bearer changed")
	req.Header = nil

	resp, err := New(Config{}).Send(context.Background(), target, out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.JSONEq(t, `{"key":"2"}`, gotBody)
}
