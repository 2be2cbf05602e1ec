// Package pws implements the PersistentWebSocket transport: a reliable,
// ordered, resumable binary message channel over a WebSocket connection,
// plus a multiplexed jet sub-channel for tunneling a single TCP stream.
//
// A PWS instance is single-writer: one connect/connected loop owns the
// socket and the inbound processor at a time, mirroring the teacher's
// one-goroutine-per-direction pump discipline but folded into a single
// mutex-guarded state machine, since PWS's state (journal, ack/resend
// bookkeeping) is shared between the read and write paths in a way the
// teacher's fire-and-forget broadcast Client never needed.
package pws

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pws/internal/connector"
	"github.com/adred-codev/pws/internal/jet"
	"github.com/adred-codev/pws/internal/journal"
	"github.com/adred-codev/pws/internal/metrics"
	"github.com/adred-codev/pws/internal/netclass"
	"github.com/adred-codev/pws/internal/timekeeper"
	"github.com/adred-codev/pws/internal/wire"
)

// Protocol timing constants (spec §4.3/§5).
const (
	AckBatchThreshold = 16
	AckTimerDelay     = time.Second
	ResendDebounce    = 500 * time.Millisecond

	JournalTimerInitial = 2 * time.Second
	JournalTimerCap     = 30 * time.Second

	BackpressureInitialSleep = time.Second
	BackpressureMaxSleep     = 30 * time.Second

	// MaxMessageLen is the largest payload send() accepts; the wire itself
	// imposes no limit beyond the WebSocket message-size ceiling, but a
	// 16-bit length field is the natural ceiling for this transport.
	MaxMessageLen = 1<<16 - 2
)

// ErrAbandoned is the terminal error delivered to errors()/incoming() when
// AbandonConnection forces the connect loop to exit.
var ErrAbandoned = errors.New("pws: abandoning connection")

// errReentrant is logged, never returned, when process_inbound is entered
// while already running.
var errReentrant = errors.New("pws: process_inbound re-entered")

type role int

const (
	roleClient role = iota
	roleServer
)

// PWS is one side of a persistent, resumable WebSocket conversation.
type PWS struct {
	logID  string
	logger zerolog.Logger

	role role

	// connMu serializes connect()/connected(): only one can own the socket
	// loop at a time (spec §5).
	connMu sync.Mutex

	// mu guards every field below; PWS is conceptually single-threaded
	// cooperative (spec §5), modeled here as one mutex rather than
	// channel-serialized access so Send/Ping/AbandonConnection can be
	// called from arbitrary goroutines without their own dispatch loop.
	mu sync.Mutex

	conn     net.Conn
	online   bool
	connects int

	maintainConnection bool

	inIndex          uint64
	inLastAck        uint64
	inLastResend     uint64
	inLastResendTime time.Time
	haveLastResend   bool

	journal *journal.Journal

	ipi bool // non-reentrance guard for process_inbound

	chaos int // [0,1000], probability per event of dropping the socket

	allowPortForwarding bool
	jetPipe             *jet.Pipe

	ackTimer     *timekeeper.OneShot
	journalTimer *timekeeper.Backoff

	incoming    chan []byte
	jetIncoming chan []byte
	errorsCh    chan string

	closed   bool
	fatalErr error
}

// New creates a PWS instance identified by logID in logs. Metrics are
// package-wide and do not carry the log id.
func New(logID string, logger zerolog.Logger) *PWS {
	return &PWS{
		logID:               logID,
		logger:              logger.With().Str("pws", logID).Logger(),
		maintainConnection:  true,
		journal:             journal.New(),
		ackTimer:            timekeeper.NewOneShot(),
		journalTimer:        timekeeper.NewBackoff(JournalTimerInitial, JournalTimerCap),
		incoming:            make(chan []byte, 64),
		jetIncoming:         make(chan []byte, 64),
		errorsCh:            make(chan string, 16),
		allowPortForwarding: false,
	}
}

// Incoming returns the channel of complete inbound application messages, in
// order, with no duplicates.
func (p *PWS) Incoming() <-chan []byte { return p.incoming }

// JetIncoming returns the channel of raw bytes received on the jet
// sub-channel.
func (p *PWS) JetIncoming() <-chan []byte { return p.jetIncoming }

// Errors returns the channel of human-readable status strings.
func (p *PWS) Errors() <-chan string { return p.errorsCh }

// AllowPortForwarding sets whether this side, acting as a jet peer, permits
// forward_to commands to open outbound TCP connections. Default is deny.
func (p *PWS) AllowPortForwarding(allow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowPortForwarding = allow
}

// SetChaos configures fault-injection: prob is a probability in [0,1000]
// (parts per thousand) that each inbound binary chunk randomly closes the
// socket before it is processed; outbound writes are not affected. Intended for tests exercising the reconnect path (spec §8 law
// 4), never set in production use.
func (p *PWS) SetChaos(prob int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chaos = prob
}

// IsOnline reports whether a live socket is currently attached.
func (p *PWS) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// IsOffline is the complement of IsOnline.
func (p *PWS) IsOffline() bool { return !p.IsOnline() }

// Send enqueues msg for delivery, blocking with exponential backoff while
// the outbound journal is full (spec §4.3/§8 law 5). msg is transmitted
// immediately if online; otherwise it is delivered on the next reconnect's
// RESEND-triggered retransmission.
func (p *PWS) Send(ctx context.Context, msg []byte, jetChannel bool) error {
	if len(msg) > MaxMessageLen {
		return fmt.Errorf("pws: message length %d exceeds maximum %d", len(msg), MaxMessageLen)
	}

	sleep := BackpressureInitialSleep
	for {
		p.mu.Lock()
		if !p.journal.Full() {
			index := p.journal.NextIndex()
			header := wire.EncodeHeader(index, jetChannel, false)
			chunk := make([]byte, 0, 2+len(msg))
			chunk = append(chunk, header[:]...)
			chunk = append(chunk, msg...)
			p.journal.Append(chunk)
			metrics.JournalDepth.Set(float64(p.journal.Len()))

			online := p.online
			conn := p.conn
			r := p.role
			p.mu.Unlock()

			if online {
				if err := writeChunk(conn, r, chunk); err != nil {
					p.logger.Warn().Err(err).Msg("send: write failed, will be covered by retransmission")
				} else {
					metrics.ChunksSent.Inc()
				}
			}
			return nil
		}
		metrics.JournalFullRejections.Inc()
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
		if sleep > BackpressureMaxSleep {
			sleep = BackpressureMaxSleep
		}
	}
}

// Ping sends a PING signal carrying data; the peer echoes it as PONG.
func (p *PWS) Ping(data []byte) error {
	header := wire.EncodeSignal(wire.SignalPING)
	chunk := append(header[:], data...)
	p.mu.Lock()
	conn, r, online := p.conn, p.role, p.online
	p.mu.Unlock()
	if !online {
		return fmt.Errorf("pws: cannot ping while offline")
	}
	return writeChunk(conn, r, chunk)
}

// AbandonConnection forces the instance offline and prevents further
// reconnect attempts; the owning Connect loop exits with ErrAbandoned.
func (p *PWS) AbandonConnection() {
	p.mu.Lock()
	p.maintainConnection = false
	p.mu.Unlock()
	p.goOffline()
}

// Connect runs the client-side connect/reconnect loop against uri until ctx
// is cancelled, a fatal error occurs, or AbandonConnection is called. It
// acquires the single-writer lock for its entire lifetime.
func (p *PWS) Connect(ctx context.Context, uri string) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	p.mu.Lock()
	p.role = roleClient
	p.mu.Unlock()

	for {
		p.mu.Lock()
		maintain := p.maintainConnection
		fatal := p.fatalErr
		p.mu.Unlock()
		if fatal != nil {
			return fatal
		}
		if !maintain {
			p.goOffline()
			p.deliverFatal(ErrAbandoned)
			return ErrAbandoned
		}

		select {
		case <-ctx.Done():
			p.goOffline()
			return ctx.Err()
		default:
		}

		conn, err := connector.Reconnect(ctx, uri, p.logger, func(msg string) {
			p.reportError(msg)
		})
		if err != nil {
			var classified *netclass.Classified
			if errors.As(err, &classified) {
				p.reportError(classified.Message)
				p.deliverFatal(classified)
				p.goOffline()
				return classified
			}
			p.goOffline()
			return err
		}

		p.goOnline(conn)
		p.listen(ctx)
		p.goOffline()
	}
}

// Connected runs the server-side loop over an already-upgraded conn until
// it closes. It acquires the single-writer lock for its entire lifetime.
func (p *PWS) Connected(ctx context.Context, conn net.Conn) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	p.mu.Lock()
	p.role = roleServer
	p.mu.Unlock()

	p.goOnline(conn)
	p.listen(ctx)
	p.goOffline()
}

func (p *PWS) goOnline(conn net.Conn) {
	p.mu.Lock()
	if p.online {
		p.mu.Unlock()
		p.logger.Error().Msg("goOnline called while already online")
		return
	}
	p.conn = conn
	p.online = true
	p.connects++
	metrics.ConnectionsActive.Inc()
	if p.connects > 1 {
		metrics.ReconnectsTotal.Inc()
	}
	p.mu.Unlock()

	p.ackTimer.ArmIfIdleAutoClear(AckTimerDelay, p.fireAckTimer)
	p.scheduleJournalTimerIfNeeded()
}

func (p *PWS) goOffline() {
	p.mu.Lock()
	if !p.online {
		p.mu.Unlock()
		return
	}
	conn := p.conn
	p.conn = nil
	p.online = false
	metrics.ConnectionsActive.Dec()
	p.mu.Unlock()

	p.ackTimer.Cancel()
	p.journalTimer.Stop()
	if conn != nil {
		_ = conn.Close()
	}
}

// listen resets resend debouncing, requests a resend of everything since
// in_index (chunks may have been lost across a reconnect), starts the
// journal retransmit timer, and reads chunks until the socket ends.
func (p *PWS) listen(ctx context.Context) {
	p.mu.Lock()
	p.haveLastResend = false
	inIndex := p.inIndex
	conn := p.conn
	r := p.role
	p.mu.Unlock()

	if err := sendResend(conn, r, inIndex); err != nil {
		p.logger.Warn().Err(err).Msg("listen: initial resend request failed")
	}
	p.scheduleJournalTimerIfNeeded()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, op, err := readChunk(conn, r)
		if err != nil {
			return
		}
		if op == ws.OpText {
			p.deliverFatal(fmt.Errorf("pws: unexpected text frame, binary framing required"))
			return
		}
		if op != ws.OpBinary {
			continue
		}
		if p.injectChaos() {
			return
		}

		msg, ok := p.processInbound(data)
		if ok {
			select {
			case p.incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processInbound applies one inbound chunk to PWS state, returning an
// application message when the chunk completed one (spec §4.3).
func (p *PWS) processInbound(chunk []byte) ([]byte, bool) {
	p.mu.Lock()
	if p.ipi {
		p.mu.Unlock()
		p.logger.Error().Err(errReentrant).Msg("process_inbound re-entered")
		return nil, false
	}
	p.ipi = true
	defer func() {
		p.mu.Lock()
		p.ipi = false
		p.mu.Unlock()
	}()
	defer p.mu.Unlock()

	if len(chunk) < wire.HeaderSize {
		return nil, false
	}
	h := wire.DecodeHeader(chunk)
	metrics.ChunksReceived.Inc()

	switch {
	case wire.IsMessage(h), wire.IsJetData(h), wire.IsJetCommand(h):
		return p.handleDataChunkLocked(h, chunk)
	default:
		p.handleSignalLocked(h, chunk)
		return nil, false
	}
}

// handleDataChunkLocked runs with p.mu held.
func (p *PWS) handleDataChunkLocked(h uint16, chunk []byte) ([]byte, bool) {
	index := wire.UnmodDefault(wire.Lsb(h), p.inIndex)

	if index < p.inIndex {
		metrics.DuplicatesDropped.Inc()
		return nil, false
	}
	if index > p.inIndex {
		p.maybeSendResendLocked(p.inIndex)
		return nil, false
	}

	p.inIndex++
	p.ackTimer.ArmIfIdleAutoClear(AckTimerDelay, p.fireAckTimer)
	if p.inIndex-p.inLastAck >= AckBatchThreshold {
		p.sendAckLocked()
	}

	payload := chunk[wire.HeaderSize:]

	switch {
	case wire.IsMessage(h):
		return payload, true
	case wire.IsJetCommand(h):
		p.handleJetCommandLocked(string(payload))
		return nil, false
	default: // jet data
		data := append([]byte(nil), payload...)
		if p.jetPipe != nil {
			metrics.JetBytesRelayed.WithLabelValues("to_tcp").Add(float64(len(data)))
			p.jetPipe.Feed(data)
			return nil, false
		}
		select {
		case p.jetIncoming <- data:
		default:
			p.logger.Warn().Msg("jet incoming buffer full, dropping chunk")
		}
		return nil, false
	}
}

// handleSignalLocked runs with p.mu held.
func (p *PWS) handleSignalLocked(h uint16, chunk []byte) {
	switch h {
	case wire.SignalACK, wire.SignalRESEND:
		if len(chunk) < wire.HeaderSize+2 {
			return
		}
		ackLsb := binary.BigEndian.Uint16(chunk[wire.HeaderSize:])
		ackIndex := wire.UnmodDefault(ackLsb, p.journal.NextIndex())
		if ackIndex < p.journal.TailIndex() || ackIndex > p.journal.NextIndex() {
			p.deliverFatalLocked(fmt.Errorf("pws: impossible ack index %d (tail=%d next=%d)",
				ackIndex, p.journal.TailIndex(), p.journal.NextIndex()))
			return
		}
		if h == wire.SignalACK {
			metrics.AcksReceived.Inc()
		}
		_ = p.journal.DropThrough(ackIndex)
		metrics.JournalDepth.Set(float64(p.journal.Len()))
		p.journalTimer.Reset()
		p.scheduleJournalTimerIfNeededLocked()

		if h == wire.SignalRESEND {
			metrics.ResendsServed.Inc()
			p.retransmitRangeLocked(ackIndex, p.journal.NextIndex())
		}

	case wire.SignalResendError:
		p.deliverFatalLocked(fmt.Errorf("pws: received RESEND_ERROR from peer"))

	case wire.SignalPING:
		payload := chunk[wire.HeaderSize:]
		header := wire.EncodeSignal(wire.SignalPONG)
		pong := append(header[:], payload...)
		if p.conn != nil {
			_ = writeChunk(p.conn, p.role, pong)
		}

	case wire.SignalPONG:
		// no-op

	default:
		p.logger.Warn().Uint16("signal", h).Msg("unknown signal received")
	}
}

func (p *PWS) handleJetCommandLocked(cmd string) {
	parsed, err := jet.ParseCommand(cmd)
	if err != nil {
		p.deliverFatalLocked(fmt.Errorf("pws: malformed jet command %q: %w", cmd, err))
		return
	}
	switch parsed.Kind {
	case jet.ForwardTo:
		if !p.allowPortForwarding {
			p.logger.Warn().Str("host", parsed.Host).Int("port", parsed.Port).Msg("forward_to denied: port forwarding not allowed")
			return
		}
		go p.openJetPipe(parsed.Host, parsed.Port)
	case jet.Disconnect:
		if p.jetPipe != nil {
			p.jetPipe.Close()
			p.jetPipe = nil
		}
	}
}

func (p *PWS) openJetPipe(host string, port int) {
	addr := jet.FormatHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, 20*time.Second)
	if err != nil {
		p.logger.Warn().Err(err).Str("addr", addr).Msg("jet forward_to: dial failed")
		return
	}

	send := func(data []byte) error {
		metrics.JetBytesRelayed.WithLabelValues("to_jet").Add(float64(len(data)))
		return p.sendJetDataChunk(data)
	}
	pipe := jet.NewPipe(conn, send)

	p.mu.Lock()
	if p.jetPipe != nil {
		p.mu.Unlock()
		p.logger.Warn().Str("addr", addr).Msg("jet forward_to: a jet pipe is already active")
		_ = conn.Close()
		return
	}
	p.jetPipe = pipe
	p.mu.Unlock()

	if err := pipe.Run(); err != nil {
		p.logger.Warn().Err(err).Msg("jet pipe ended with error")
	}

	p.mu.Lock()
	if p.jetPipe == pipe {
		p.jetPipe = nil
	}
	p.mu.Unlock()
}

func (p *PWS) sendJetDataChunk(data []byte) error {
	return p.Send(context.Background(), data, true)
}

func (p *PWS) maybeSendResendLocked(index uint64) {
	now := time.Now()
	if p.haveLastResend && p.inLastResend == index && now.Sub(p.inLastResendTime) < ResendDebounce {
		return
	}
	p.inLastResend = index
	p.inLastResendTime = now
	p.haveLastResend = true
	metrics.ResendsRequested.Inc()
	if p.conn != nil {
		_ = sendResend(p.conn, p.role, index)
	}
}

func (p *PWS) sendAckLocked() {
	p.inLastAck = p.inIndex
	metrics.AcksSent.Inc()
	if p.conn != nil {
		_ = sendAck(p.conn, p.role, p.inIndex)
	}
}

func (p *PWS) fireAckTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.online {
		p.sendAckLocked()
	}
}

func (p *PWS) retransmitRangeLocked(start, end uint64) {
	if p.conn == nil {
		return
	}
	conn, r := p.conn, p.role
	p.journal.IterRange(start, end, func(index uint64, chunk []byte) bool {
		if err := writeChunk(conn, r, chunk); err != nil {
			p.logger.Warn().Err(err).Uint64("index", index).Msg("retransmit failed")
			return false
		}
		metrics.ChunksSent.Inc()
		return true
	})
}

func (p *PWS) scheduleJournalTimerIfNeeded() {
	p.mu.Lock()
	empty := p.journal.Empty()
	p.mu.Unlock()
	p.scheduleJournalTimerForEmptiness(empty)
}

// scheduleJournalTimerIfNeededLocked is scheduleJournalTimerIfNeeded for
// callers that already hold p.mu (it only reads state already in hand, so
// it need not re-lock).
func (p *PWS) scheduleJournalTimerIfNeededLocked() {
	p.scheduleJournalTimerForEmptiness(p.journal.Empty())
}

func (p *PWS) scheduleJournalTimerForEmptiness(empty bool) {
	if empty {
		p.journalTimer.Stop()
		return
	}
	p.journalTimer.Start(p.retransmitOldest)
}

func (p *PWS) retransmitOldest() {
	p.mu.Lock()
	index, chunk, ok := p.journal.Oldest()
	conn, r, online := p.conn, p.role, p.online
	p.mu.Unlock()
	if !ok || !online {
		p.journalTimer.Stop()
		return
	}
	if err := writeChunk(conn, r, chunk); err != nil {
		p.logger.Warn().Err(err).Uint64("index", index).Msg("journal retransmit failed")
	} else {
		metrics.ChunksSent.Inc()
	}
	p.journalTimer.Tick(p.retransmitOldest)
}

func (p *PWS) reportError(msg string) {
	select {
	case p.errorsCh <- msg:
	default:
	}
}

func (p *PWS) deliverFatal(err error) {
	p.mu.Lock()
	p.deliverFatalLocked(err)
	p.mu.Unlock()
}

func (p *PWS) deliverFatalLocked(err error) {
	p.logger.Error().Err(err).Msg("fatal protocol error")
	p.reportError(err.Error())
	if !p.closed {
		p.closed = true
		p.fatalErr = err
		close(p.incoming)
	}
	conn := p.conn
	if conn != nil {
		_ = conn.Close()
	}
}

// injectChaos randomly closes the socket for fault-injection testing of the
// reconnect path (spec §8 law 4). Returns true if the socket was closed.
func (p *PWS) injectChaos() bool {
	p.mu.Lock()
	prob := p.chaos
	conn := p.conn
	p.mu.Unlock()
	if prob <= 0 {
		return false
	}
	if rand.Intn(1000) < prob {
		if conn != nil {
			_ = conn.Close()
		}
		return true
	}
	return false
}

func writeChunk(conn net.Conn, r role, chunk []byte) error {
	if conn == nil {
		return fmt.Errorf("pws: write on nil connection")
	}
	if r == roleClient {
		return wsutil.WriteClientMessage(conn, ws.OpBinary, chunk)
	}
	return wsutil.WriteServerMessage(conn, ws.OpBinary, chunk)
}

func readChunk(conn net.Conn, r role) ([]byte, ws.OpCode, error) {
	if conn == nil {
		return nil, 0, fmt.Errorf("pws: read on nil connection")
	}
	if r == roleClient {
		return wsutil.ReadServerData(conn)
	}
	return wsutil.ReadClientData(conn)
}

func sendResend(conn net.Conn, r role, index uint64) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(index%wire.LSBWindow))
	header := wire.EncodeSignal(wire.SignalRESEND)
	chunk := append(header[:], payload...)
	return writeChunk(conn, r, chunk)
}

func sendAck(conn net.Conn, r role, index uint64) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(index%wire.LSBWindow))
	header := wire.EncodeSignal(wire.SignalACK)
	chunk := append(header[:], payload...)
	return writeChunk(conn, r, chunk)
}
