// Package hubevents publishes conversation lifecycle events for external
// monitoring dashboards, grounded on the teacher's pkg/nats/client.go
// (connect/reconnect/error handler discipline), restricted to the
// publish-only subset the hub needs.
package hubevents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event is a single conversation lifecycle notification.
type Event struct {
	ConvID string    `json:"conv_id"`
	Kind   string    `json:"kind"` // connected, disconnected, fatal
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher publishes Events to pws.events.<convId> subjects. It is purely
// additive observability and never sits on the PWS hot path.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewPublisher connects to url and returns a Publisher, or an error if the
// initial connect attempt fails.
func NewPublisher(url string, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{logger: logger}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ConnectHandler(p.onConnect),
		nats.DisconnectErrHandler(p.onDisconnect),
		nats.ReconnectHandler(p.onReconnect),
		nats.ErrorHandler(p.onError),
	)
	if err != nil {
		return nil, fmt.Errorf("hubevents: connect to %s: %w", url, err)
	}
	p.conn = conn
	return p, nil
}

// Publish sends an Event for convId on pws.events.<convId>, logging (not
// returning) a failure since event publishing must never block the caller's
// PWS hot path.
func (p *Publisher) Publish(convID, kind, detail string) {
	evt := Event{ConvID: convID, Kind: kind, Detail: detail, At: time.Now()}
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Warn().Err(err).Str("conv_id", convID).Msg("hubevents: marshal failed")
		return
	}
	subject := "pws.events." + convID
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("hubevents: publish failed")
	}
}

// Close closes the underlying NATS connection without draining it.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) onConnect(conn *nats.Conn) {
	p.logger.Info().Str("url", conn.ConnectedUrl()).Msg("hubevents: connected to NATS")
}

func (p *Publisher) onDisconnect(conn *nats.Conn, err error) {
	if err != nil {
		p.logger.Warn().Err(err).Msg("hubevents: disconnected from NATS")
		return
	}
	p.logger.Info().Msg("hubevents: disconnected from NATS")
}

func (p *Publisher) onReconnect(conn *nats.Conn) {
	p.logger.Info().Str("url", conn.ConnectedUrl()).Msg("hubevents: reconnected to NATS")
}

func (p *Publisher) onError(conn *nats.Conn, sub *nats.Subscription, err error) {
	p.logger.Warn().Err(err).Msg("hubevents: NATS error")
}
