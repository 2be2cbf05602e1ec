// Package netclass maps low-level socket/dial errors to PWS's error
// taxonomy: recoverable (TransientNetwork) or fatal (FatalConfig,
// ProtocolViolation). Classification is by literal substring match against
// the underlying error text, per spec §4.4/§7 — the same style as the
// teacher's monitoring/alerting.go severity mapping, applied to network
// errors instead of audit events.
package netclass

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind is the error taxonomy bucket an error was classified into.
type Kind int

const (
	// Recoverable means the connector should report the message and retry.
	Recoverable Kind = iota
	// Fatal means the caller must tear down the PWS instance and start a
	// fresh conversation.
	Fatal
)

func (k Kind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// Classified is the error type PWS and the connector pass around: a
// human-readable message safe to surface on the errors() stream, plus the
// taxonomy bucket and the original error for log correlation.
type Classified struct {
	Kind    Kind
	Message string
	Err     error
}

func (c *Classified) Error() string { return c.Message }
func (c *Classified) Unwrap() error { return c.Err }

func recoverable(msg string, err error) *Classified {
	return &Classified{Kind: Recoverable, Message: msg, Err: err}
}

func fatal(msg string, err error) *Classified {
	return &Classified{Kind: Fatal, Message: msg, Err: err}
}

// DNSProbeHost is the well-known host used to tell a bad hostname apart
// from a broken local resolver (spec §4.4).
const DNSProbeHost = "example.org"

// Classify inspects err (typically returned from dialing or upgrading a
// WebSocket) and returns a Classified error per the spec §4.4 rules.
// dnsProbe is injected so tests can avoid a real network round trip; pass
// nil to use the real resolver.
func Classify(err error, dnsProbe func(ctx context.Context) error) *Classified {
	if err == nil {
		return nil
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "No route to host"):
		return recoverable("unable to connect to the host; retrying", err)

	case strings.Contains(msg, "No address associated with hostname"),
		strings.Contains(msg, "Failed host lookup"):
		if dnsProbe == nil {
			dnsProbe = probeDNS
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if probeErr := dnsProbe(ctx); probeErr != nil {
			return recoverable("no local network connectivity; retrying", err)
		}
		return fatal("could not resolve the hub address; check the URL", err)

	case strings.Contains(msg, "HTTP connection timed out"):
		return recoverable("connection attempt timed out; retrying", err)

	case strings.Contains(msg, "Connection refused"):
		return fatal("connection refused by the hub", err)

	case strings.Contains(msg, "Connection reset by peer"):
		return fatal("connection reset by the hub", err)

	case isWebSocketUpgradeFailure(err):
		return fatal("credentials not found; make sure they were entered correctly", err)

	case isTLSHandshakeFailure(err):
		return fatal("TLS handshake failed", err)

	default:
		return fatal(fmt.Sprintf("unable to connect: %v", err), err)
	}
}

func isWebSocketUpgradeFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not upgraded") ||
		strings.Contains(msg, "status code 401") ||
		strings.Contains(msg, "status code 403") ||
		strings.Contains(msg, "unexpected HTTP response status")
}

func isTLSHandshakeFailure(err error) bool {
	var tlsErr *tls.RecordHeaderError
	if ok := asTLSError(err, &tlsErr); ok {
		return true
	}
	return strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:")
}

func asTLSError(err error, target **tls.RecordHeaderError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if rh, ok := err.(*tls.RecordHeaderError); ok {
			*target = rh
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func probeDNS(ctx context.Context) error {
	var r net.Resolver
	_, err := r.LookupHost(ctx, DNSProbeHost)
	return err
}

// ConnectivityCheck opens a TCP+TLS connection to host:port and returns ""
// on success or a classified human-readable message on failure, per spec
// §4.4's public connectivity_check.
func ConnectivityCheck(host string, port int) string {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		c := Classify(err, nil)
		return c.Message
	}
	_ = conn.Close()
	return ""
}
