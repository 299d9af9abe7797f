package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/cenkalti/backoff/v5"
)

// dialWithRetry dials addr with jittered exponential backoff, mirroring the
// retry shape around the teacher's getCurrentEpoch: a handful of attempts,
// logged past the first, rather than failing the whole process on one
// transient connect error.
func dialWithRetry(ctx context.Context, log *slog.Logger, addr string) (net.Conn, error) {
	attempt := 0
	conn, err := backoff.Retry(ctx, func() (net.Conn, error) {
		if attempt > 0 {
			log.Warn("transport connect failed, retrying", "addr", addr, "attempt", attempt)
		}
		attempt++
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transport at %s: %w", addr, err)
	}
	return conn, nil
}
