// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observerServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialObserver(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHub_PublishReachesEveryObserver(t *testing.T) {
	hub := NewHub(nil)
	srv := observerServer(t, hub)

	a := dialObserver(t, srv)
	b := dialObserver(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Record{ClientIP: "203.0.113.7", Endpoint: "/v1/sportradar/sports", Outcome: OutcomeAllowed, StatusCode: 200})

	for _, conn := range []*websocket.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, EventNewLog, evt.Type)
		assert.Equal(t, "/v1/sportradar/sports", evt.Data.Endpoint)
		assert.Equal(t, 200, evt.Data.StatusCode)
	}
}

func TestHub_ObserverDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	srv := observerServer(t, hub)

	conn := dialObserver(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsObservers(t *testing.T) {
	hub := NewHub(nil)
	srv := observerServer(t, hub)
	conn := dialObserver(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "invalid url", url: "not-a-url", errContains: "parse redis url"},
		{name: "unreachable", url: "redis://127.0.0.1:1", errContains: "connect redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConnectRedis(tt.url)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestRedisRelay_CrossWorkerDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()

	// Two workers, each with its own hub and relay, sharing one Redis.
	hubA, hubB := NewHub(nil), NewHub(nil)
	clientA, err := ConnectRedis(url)
	require.NoError(t, err)
	defer clientA.Close()
	clientB, err := ConnectRedis(url)
	require.NoError(t, err)
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayA := NewRedisRelay(clientA, hubA, nil)
	relayB := NewRedisRelay(clientB, hubB, nil)
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))
	defer relayA.Close()
	defer relayB.Close()

	observer := dialObserver(t, observerServer(t, hubB))
	require.Eventually(t, func() bool { return hubB.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	relayA.Publish(Record{ClientIP: "192.0.2.10", Endpoint: "/v1/royal/tables", Outcome: OutcomeBlocked, Reason: "not-whitelisted"})

	evt := readEvent(t, observer)
	assert.Equal(t, EventNewLog, evt.Type)
	assert.Equal(t, "192.0.2.10", evt.Data.ClientIP)
	assert.Equal(t, OutcomeBlocked, evt.Data.Outcome)
	assert.Equal(t, "not-whitelisted", evt.Data.Reason)
}

func TestRedisRelay_FallsBackToLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	hub := NewHub(nil)
	relay := NewRedisRelay(client, hub, nil)
	observer := dialObserver(t, observerServer(t, hub))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	mr.Close()
	relay.Publish(Record{Endpoint: "/v1/sports/list"})

	evt := readEvent(t, observer)
	assert.Equal(t, "/v1/sports/list", evt.Data.Endpoint)
}
