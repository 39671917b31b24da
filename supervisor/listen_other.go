// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

//go:build !unix

package supervisor

import (
	"context"
	"net"
)

// Listen binds addr. Without SO_REUSEPORT only one worker can hold the port.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
