// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for the gateway components.

Each entry is a single JSON line carrying the component name, the deployment
instance id, the worker process id, and (when known) the caller address and
request id:

	log := logger.New("gateway")
	log.Info("203.0.113.7", reqID, "request forwarded", map[string]interface{}{
	    "provider": "sportradar",
	})

Sub-components share the parent's writer:

	mux := log.With("multiplexer")

# Environment Variables

  - INSTANCE_ID: deployment instance identifier (default "unknown")
  - LOG_LEVEL: minimum level written, one of DEBUG, INFO, WARN, ERROR

Logger instances are safe for concurrent use.
*/
package logger
