// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package audit records every request the gateway mediates. Records are
// queued and written in the background, persisted to MongoDB and pushed to
// connected administrative observers as NEW_LOG events.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Outcome classifies a mediated request.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeBlocked Outcome = "blocked"
	OutcomeError   Outcome = "error"
)

// TargetInternal marks requests served from local snapshots or caches.
const TargetInternal = "internal"

// Record is one request log entry.
type Record struct {
	Timestamp    time.Time   `json:"timestamp" bson:"timestamp"`
	ClientIP     string      `json:"clientIp" bson:"clientIp"`
	Endpoint     string      `json:"endpoint" bson:"endpoint"`
	Method       string      `json:"method" bson:"method"`
	UserAgent    string      `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	StatusCode   int         `json:"statusCode" bson:"statusCode"`
	ResponseTime int64       `json:"responseTime" bson:"responseTime"`
	ClientID     string      `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Outcome      Outcome     `json:"status" bson:"status"`
	Reason       string      `json:"reason,omitempty" bson:"reason,omitempty"`
	TargetURL    string      `json:"targetUrl,omitempty" bson:"targetUrl,omitempty"`
	RequestID    string      `json:"requestId,omitempty" bson:"requestId,omitempty"`
	RequestBody  interface{} `json:"requestBody,omitempty" bson:"requestBody,omitempty"`
	ResponseBody interface{} `json:"responseBody,omitempty" bson:"responseBody,omitempty"`
}

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Publisher pushes records to live observers. Implementations must not block.
type Publisher interface {
	Publish(r Record)
}

// EventNewLog tags records pushed to observers.
const EventNewLog = "NEW_LOG"

// Event is the envelope observers receive.
type Event struct {
	Type string `json:"type"`
	Data Record `json:"data"`
}

func encodeEvent(r Record) ([]byte, error) {
	return json.Marshal(Event{Type: EventNewLog, Data: r})
}

// DecodeBody turns a captured body into something worth storing: parsed JSON
// when it is JSON, the raw text otherwise, or a marker for binary payloads.
func DecodeBody(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	if utf8.Valid(raw) && bytes.IndexByte(raw, 0) < 0 {
		return string(raw)
	}
	return "[binary data]"
}
