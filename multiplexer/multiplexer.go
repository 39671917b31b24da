// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package multiplexer shares one upstream WebSocket per channel key among any
// number of downstream subscribers.
//
// A channel is dialed when its first subscriber joins and torn down when the
// last one leaves. If the upstream fails, every subscriber is disconnected and
// the next join dials afresh. Subscribers receive upstream frames in upstream
// order; frames sent by subscribers are relayed upstream while it is live and
// dropped otherwise.
package multiplexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oddsgate/platform/shared/logger"
)

var (
	// ErrClosed is returned by Join after Close.
	ErrClosed = errors.New("multiplexer: closed")
)

// ChannelKey names one live-data channel.
type ChannelKey struct {
	Game  string
	Table string
}

func (k ChannelKey) String() string { return k.Game + ":" + k.Table }

// State is a channel's lifecycle stage.
type State string

const (
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateClosing    State = "closing"
)

// Config wires a Multiplexer. UpstreamURL is required.
type Config struct {
	UpstreamURL  func(ChannelKey) string
	Dialer       *websocket.Dialer
	DialTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	// SubscriberBuffer is how many frames may queue for one subscriber before
	// it is dropped as too slow.
	SubscriberBuffer int
	// Welcome, if set, is the first frame every joining subscriber receives.
	Welcome func(ChannelKey) []byte
	Logger  *logger.Logger
	// OnChange observes channel and subscriber totals, for gauges.
	OnChange func(channels, subscribers int)
}

// ChannelInfo describes one live entry of the channel table.
type ChannelInfo struct {
	Key         string `json:"table"`
	State       State  `json:"state"`
	Subscribers int    `json:"clients"`
}

// Multiplexer owns the channel table.
type Multiplexer struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	channels map[ChannelKey]*channel
	closed   bool
}

// New returns an empty Multiplexer.
func New(cfg Config) *Multiplexer {
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 256
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Multiplexer{cfg: cfg, log: log, channels: make(map[ChannelKey]*channel)}
}

// Join subscribes conn to key and serves it until either side goes away.
// Join owns conn and closes it before returning.
func (m *Multiplexer) Join(key ChannelKey, conn *websocket.Conn) error {
	s := newSubscriber(conn, m.cfg.SubscriberBuffer, m.cfg.WriteTimeout)
	ch, err := m.attach(key, s)
	if err != nil {
		_ = conn.Close()
		return err
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		ch.sendUpstream(typ, data)
	}

	ch.leave(s)
	s.close()
	<-writerDone
	return nil
}

func (m *Multiplexer) attach(key ChannelKey, s *subscriber) (*channel, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	ch := m.channels[key]
	if ch != nil && !ch.add(s, m.welcome(key)) {
		ch = nil // closing; replace it
	}
	if ch == nil {
		ch = newChannel(m, key)
		ch.add(s, m.welcome(key))
		m.channels[key] = ch
		m.log.Info("", "", "opening upstream channel", map[string]interface{}{"channel": key.String()})
		go ch.connect()
	}
	m.mu.Unlock()

	m.changed()
	return ch, nil
}

func (m *Multiplexer) welcome(key ChannelKey) []byte {
	if m.cfg.Welcome == nil {
		return nil
	}
	return m.cfg.Welcome(key)
}

func (m *Multiplexer) remove(ch *channel) {
	m.mu.Lock()
	if m.channels[ch.key] == ch {
		delete(m.channels, ch.key)
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Multiplexer) changed() {
	if m.cfg.OnChange == nil {
		return
	}
	channels, subscribers := m.totals()
	m.cfg.OnChange(channels, subscribers)
}

func (m *Multiplexer) totals() (channels, subscribers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		channels++
		subscribers += ch.subscriberCount()
	}
	return channels, subscribers
}

// Info lists the channel table ordered by key.
func (m *Multiplexer) Info() []ChannelInfo {
	m.mu.Lock()
	out := make([]ChannelInfo, 0, len(m.channels))
	for key, ch := range m.channels {
		ch.mu.Lock()
		out = append(out, ChannelInfo{Key: key.String(), State: ch.state, Subscribers: len(ch.subs)})
		ch.mu.Unlock()
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close tears down every channel and refuses further joins.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	channels := make([]*channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(nil)
	}
}

type frame struct {
	typ  int
	data []byte
}

type channel struct {
	m   *Multiplexer
	key ChannelKey
	url string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	upstream *websocket.Conn
	subs     map[*subscriber]struct{}

	writeMu sync.Mutex
}

func newChannel(m *Multiplexer, key ChannelKey) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &channel{
		m:      m,
		key:    key,
		url:    m.cfg.UpstreamURL(key),
		ctx:    ctx,
		cancel: cancel,
		state:  StateConnecting,
		subs:   make(map[*subscriber]struct{}),
	}
}

// add registers s unless the channel is closing. welcome is queued first so
// it precedes any upstream frame.
func (c *channel) add(s *subscriber, welcome []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosing {
		return false
	}
	if welcome != nil {
		s.enqueue(frame{typ: websocket.TextMessage, data: welcome})
	}
	c.subs[s] = struct{}{}
	return true
}

func (c *channel) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *channel) connect() {
	ctx, cancel := context.WithTimeout(c.ctx, c.m.cfg.DialTimeout)
	conn, _, err := c.m.cfg.Dialer.DialContext(ctx, c.url, nil)
	cancel()
	if err != nil {
		c.m.log.Error("", "", "upstream dial failed", map[string]interface{}{
			"channel": c.key.String(),
			"error":   err.Error(),
		})
		c.shutdown(err)
		return
	}

	c.mu.Lock()
	if c.state == StateClosing {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.upstream = conn
	c.state = StateLive
	c.mu.Unlock()

	c.m.log.Info("", "", "upstream channel live", map[string]interface{}{"channel": c.key.String()})
	go c.keepalive(conn)
	c.readUpstream(conn)
}

func (c *channel) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *channel) readUpstream(conn *websocket.Conn) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.m.log.Info("", "", "upstream closed channel", map[string]interface{}{"channel": c.key.String()})
				c.shutdown(nil)
			} else {
				c.shutdown(err)
			}
			return
		}
		c.broadcast(frame{typ: typ, data: data})
	}
}

func (c *channel) broadcast(f frame) {
	var slow []*subscriber
	c.mu.Lock()
	for s := range c.subs {
		if !s.enqueue(f) {
			slow = append(slow, s)
		}
	}
	c.mu.Unlock()

	for _, s := range slow {
		c.m.log.Warn("", "", "dropping slow subscriber", map[string]interface{}{"channel": c.key.String()})
		c.leave(s)
		s.close()
	}
}

func (c *channel) sendUpstream(typ int, data []byte) {
	c.mu.Lock()
	conn, live := c.upstream, c.state == StateLive
	c.mu.Unlock()
	if !live {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.m.cfg.WriteTimeout))
	if err := conn.WriteMessage(typ, data); err != nil {
		c.m.log.Warn("", "", "upstream write failed", map[string]interface{}{
			"channel": c.key.String(),
			"error":   err.Error(),
		})
	}
}

// leave removes s; removing the last subscriber tears the channel down.
func (c *channel) leave(s *subscriber) {
	c.mu.Lock()
	if _, ok := c.subs[s]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, s)
	if len(c.subs) > 0 || c.state == StateClosing {
		c.mu.Unlock()
		c.m.changed()
		return
	}
	subs := c.closeLocked()
	c.mu.Unlock()

	c.m.log.Info("", "", "no subscribers left, closing upstream", map[string]interface{}{"channel": c.key.String()})
	c.finish(subs, nil)
}

// shutdown closes the channel. A non-nil cause is relayed to subscribers
// before they are disconnected.
func (c *channel) shutdown(cause error) {
	c.mu.Lock()
	if c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	subs := c.closeLocked()
	c.mu.Unlock()

	var notice []byte
	if cause != nil {
		notice, _ = json.Marshal(map[string]string{
			"error":   "Provider connection error",
			"details": cause.Error(),
		})
	}
	c.finish(subs, notice)
}

func (c *channel) closeLocked() []*subscriber {
	c.state = StateClosing
	c.cancel()
	if c.upstream != nil {
		_ = c.upstream.Close()
	}
	subs := make([]*subscriber, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = map[*subscriber]struct{}{}
	return subs
}

func (c *channel) finish(subs []*subscriber, notice []byte) {
	c.m.remove(c)
	for _, s := range subs {
		if notice != nil {
			s.enqueue(frame{typ: websocket.TextMessage, data: notice})
		}
		s.close()
	}
}

type subscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	send   chan frame
	closed bool
}

func newSubscriber(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *subscriber {
	return &subscriber{conn: conn, send: make(chan frame, buffer), writeTimeout: writeTimeout}
}

func (s *subscriber) enqueue(f frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- f:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// writeLoop delivers queued frames in order, then says goodbye.
func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for f := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := s.conn.WriteMessage(f.typ, f.data); err != nil {
			// Unblocks the reader in Join, which then closes s.send.
			_ = s.conn.Close()
			for range s.send {
			}
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// RoyalUpstream builds the provider URL for a table feed.
func RoyalUpstream(base string) func(ChannelKey) string {
	return func(k ChannelKey) string {
		return fmt.Sprintf("%s/RGONLINE:%s:%s", base, k.Game, k.Table)
	}
}

// JoinedWelcome is the frame a subscriber receives on joining a table.
func JoinedWelcome(k ChannelKey) []byte {
	b, _ := json.Marshal(map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Joined table %s proxy", k.Table),
	})
	return b
}
