// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/launchpad/launchpad/internal/container"
)

const (
	readyAttempts = 32
	readyBackoff  = 50 * time.Millisecond
	// readyAttemptTimeout bounds one probe request.
	readyAttemptTimeout = 2 * time.Second
	// readyPath is requested on the published port. Any status counts.
	readyPath = "/"
)

// ErrNotReady is returned when the published port never answered HTTP.
var ErrNotReady = errors.New("service did not become ready")

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// WaitReady waits until the server at address answers an HTTP request or
// timeout elapses. A port that accepts and then drops the connection, as an
// engine's port proxy does before the entry-point listens, is not ready.
func WaitReady(ctx context.Context, address string, timeout time.Duration) error {
	var d net.Dialer
	return waitReady(ctx, d.DialContext, address, timeout)
}

func waitReady(ctx context.Context, dial DialFunc, address string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext:       dial,
			DisableKeepAlives: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	defer client.CloseIdleConnections()
	url := "http://" + address + readyPath

	var lastErr error
	err := container.RetryWithBackoff(ctx, readyAttempts, readyBackoff, func(int) (bool, error) {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, readyAttemptTimeout)
		defer attemptCancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			return true, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) // Drain before close; content unused
		_ = resp.Body.Close()
		return false, nil
	})
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return fmt.Errorf("%w: %s after %s: %w", ErrNotReady, address, timeout, lastErr)
}
