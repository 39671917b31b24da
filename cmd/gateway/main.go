// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the OddsGate provider gateway.
//
// The gateway sits between allowlisted betting and casino integrations and
// their upstream providers:
// - Admits callers by address, account status and per-provider permissions
// - Relays provider APIs with bounded upstream calls and hot caches
// - Shares one upstream WebSocket per live table among all subscribers
// - Serves SportRadar catalogues from locally synced snapshots
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 3000)
//	MONGODB_URI - MongoDB connection string
//	REDIS_URL - Optional Redis for cross-worker log streaming
//	JWT_SECRET - Secret for the admin log stream
//	WORKERS - Number of worker processes sharing the port
package main

import (
	"oddsgate/platform/gateway"
)

func main() {
	gateway.Run()
}
