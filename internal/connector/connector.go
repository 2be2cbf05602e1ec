// Package connector implements the client-side reconnect loop: bounded
// per-attempt timeout, classification of dial failures via netclass, and a
// fixed retry sleep on recoverable errors. Grounded on the teacher's
// loadtest/main.go dialer (HandshakeTimeout + custom NetDialContext) and the
// other_examples tendermint rpc/jsonrpc/client ws_client.go reconnect loop
// shape (classify -> sleep -> retry, fatal breaks out).
package connector

import (
	"context"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pws/internal/netclass"
)

// ConnectTimeout is the hard per-attempt dial timeout (spec §4.4).
const ConnectTimeout = 20 * time.Second

// RetryDelay is the sleep between recoverable reconnect attempts (spec §4.4).
const RetryDelay = 5 * time.Second

// StatusFunc receives human-readable recoverable error messages, matching
// PWS's errors() stream.
type StatusFunc func(message string)

// Dial performs a single connect attempt to uri with a hard ConnectTimeout,
// returning the raw upgraded connection on success.
func Dial(ctx context.Context, uri string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	dialer := ws.Dialer{
		Timeout: ConnectTimeout,
	}
	conn, _, _, err := dialer.Dial(dialCtx, uri)
	return conn, err
}

// Reconnect loops calling Dial until it succeeds or ctx is cancelled,
// reporting recoverable failures on report and returning a fatal
// *netclass.Classified immediately when one occurs.
func Reconnect(ctx context.Context, uri string, logger zerolog.Logger, report StatusFunc) (net.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn, err := Dial(ctx, uri)
		if err == nil {
			return conn, nil
		}

		classified := netclass.Classify(err, nil)
		if classified.Kind == netclass.Fatal {
			logger.Error().Err(err).Str("message", classified.Message).Msg("reconnect: fatal dial failure")
			return nil, classified
		}

		logger.Warn().Err(err).Str("message", classified.Message).Msg("reconnect: recoverable dial failure, retrying")
		if report != nil {
			report(classified.Message)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
}
