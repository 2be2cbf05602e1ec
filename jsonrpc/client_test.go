package jsonrpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pws/pws"
)

// wireUpPair starts a real TCP listener, upgrades one accepted connection to
// a WebSocket server-side, and returns a connected client/server PWS pair.
func wireUpPair(t *testing.T) (client, server *pws.PWS, cancel context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancelFn := context.WithCancel(context.Background())

	server = pws.New("server", zerolog.Nop())
	client = pws.New("client", zerolog.Nop())

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if _, err := ws.Upgrade(conn); err != nil {
			conn.Close()
			return
		}
		server.Connected(ctx, conn)
	}()

	go func() {
		_ = client.Connect(ctx, "ws://"+ln.Addr().String()+"/")
	}()

	// Give the handshake a moment to complete.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.IsOnline() && server.IsOnline() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel = func() {
		cancelFn()
		ln.Close()
	}
	return client, server, cancel
}

func TestCallRoundTrip(t *testing.T) {
	client, server, cancel := wireUpPair(t)
	defer cancel()

	if !client.IsOnline() || !server.IsOnline() {
		t.Fatalf("pair did not come online before timeout")
	}

	New(server, zerolog.Nop(), func(req *Request) {
		if req.Method != "ping" {
			return
		}
		go func() { _ = serverReply(server, req.ID, "pong") }()
	})

	clientRPC := New(client, zerolog.Nop(), nil)

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	result, err := clientRPC.Call(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if s != "pong" {
		t.Fatalf("got %q, want %q", s, "pong")
	}
}

func serverReply(conn *pws.PWS, id int64, result string) error {
	raw, _ := json.Marshal(result)
	body, _ := json.Marshal(Response{JSONRPC: "2.0", ID: id, Result: raw})
	return conn.Send(context.Background(), body, false)
}
