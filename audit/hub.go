// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oddsgate/platform/shared/logger"
)

const (
	observerBuffer = 64
	writeWait      = 10 * time.Second
)

// Hub fans NEW_LOG events out to the observers connected to this process.
// Observers that cannot keep up are disconnected.
type Hub struct {
	mu        sync.RWMutex
	observers map[*websocket.Conn]chan []byte
	log       *logger.Logger
}

// NewHub returns an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		observers: make(map[*websocket.Conn]chan []byte),
		log:       log,
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(r Record) {
	payload, err := encodeEvent(r)
	if err != nil {
		h.log.Error(r.ClientIP, r.RequestID, "encode log event failed", map[string]interface{}{"error": err.Error()})
		return
	}
	h.Broadcast(payload)
}

// Broadcast sends an already encoded event to every observer.
func (h *Hub) Broadcast(payload []byte) {
	var slow []*websocket.Conn
	h.mu.RLock()
	for conn, ch := range h.observers {
		select {
		case ch <- payload:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.remove(conn)
		_ = conn.Close()
	}
}

// Serve registers conn and pumps events to it until the peer goes away.
// It owns conn and closes it on return.
func (h *Hub) Serve(conn *websocket.Conn) {
	ch := make(chan []byte, observerBuffer)
	h.mu.Lock()
	h.observers[conn] = ch
	h.mu.Unlock()
	defer func() {
		h.remove(conn)
		_ = conn.Close()
	}()

	// Observers never send anything meaningful; reading only detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.observers[conn]; ok {
		delete(h.observers, conn)
		close(ch)
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.observers))
	for conn, ch := range h.observers {
		delete(h.observers, conn)
		close(ch)
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}
