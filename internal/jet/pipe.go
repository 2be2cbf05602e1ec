package jet

import (
	"errors"
	"io"
	"net"
)

// ErrPortForwardingDenied is returned when a forward_to command arrives but
// port forwarding is not permitted on this side of the connection.
var ErrPortForwardingDenied = errors.New("jet: port forwarding denied")

// SendFunc transmits a chunk of jet payload to the peer over the PWS jet
// stream (wire header with JetBit set).
type SendFunc func(data []byte) error

// Pipe relays bytes between one TCP connection and the jet stream of a PWS
// connection. Only one Pipe may be active per PWS connection at a time (spec
// §4.5's single TCP connection constraint); the caller enforces that by not
// constructing a second Pipe before Run returns.
type Pipe struct {
	conn     net.Conn
	sendJet  SendFunc
	incoming chan []byte
	errc     chan error
}

// NewPipe wires conn to the jet stream via send (outbound TCP->jet data).
// Deliver incoming jet->TCP bytes by calling Feed.
func NewPipe(conn net.Conn, send SendFunc) *Pipe {
	return &Pipe{
		conn:     conn,
		sendJet:  send,
		incoming: make(chan []byte, 64),
		errc:     make(chan error, 2),
	}
}

// Feed delivers a chunk received over the jet stream to the TCP connection.
// Safe to call concurrently with Run.
func (p *Pipe) Feed(data []byte) {
	p.incoming <- data
}

// Close ends the jet->TCP goroutine without touching conn. Feed must not be
// called after Close.
func (p *Pipe) Close() {
	close(p.incoming)
}

// Run relays bytes in both directions until either side reaches EOF or
// errors, then closes conn and returns the first error encountered (nil on a
// clean EOF-terminated relay).
func (p *Pipe) Run() error {
	done := make(chan struct{})
	go func() { p.errc <- p.relayTCPToJet() }()
	go func() { p.errc <- p.relayJetToTCP(done) }()

	err := <-p.errc
	close(done)
	_ = p.conn.Close()
	<-p.errc

	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (p *Pipe) relayTCPToJet() error {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := p.sendJet(chunk); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			return err
		}
	}
}

func (p *Pipe) relayJetToTCP(done <-chan struct{}) error {
	for {
		select {
		case data, ok := <-p.incoming:
			if !ok {
				return io.EOF
			}
			if _, err := p.conn.Write(data); err != nil {
				return err
			}
		case <-done:
			return io.EOF
		}
	}
}
