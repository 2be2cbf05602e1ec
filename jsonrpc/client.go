// Package jsonrpc wraps a PWS connection's Incoming()/Send() as a stream of
// UTF-8 JSON-RPC 2.0 request/response text. Grounded on spec §4.8/§6: PWS
// already delivers whole messages, but incoming JSON-RPC text is still
// pushed back through the jsonframer collaborator for the one path that
// receives raw concatenated text rather than PWS-framed chunks.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pws/internal/jsonframer"
	"github.com/adred-codev/pws/pws"
)

// DefaultTimeout is the request timeout applied when ctx carries no
// deadline (spec §6).
const DefaultTimeout = 45 * time.Second

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc: %d %s", e.Code, e.Message) }

// errConnectionClosed is delivered to every pending Call when the underlying
// PWS connection closes its Incoming() stream (spec §4.3: a fatal error
// aborts waiting RPC calls rather than letting them sit until their own
// timeout expires).
var errConnectionClosed = &Error{Code: -32000, Message: "pws: connection closed"}

// Handler processes an inbound request/notification (no "id" for
// notifications) and is called from the client's single dispatch
// goroutine; it must not block.
type Handler func(req *Request)

// Client issues JSON-RPC requests over a PWS connection and dispatches
// inbound requests/notifications to a Handler.
type Client struct {
	conn    *pws.PWS
	logger  zerolog.Logger
	framer  *jsonframer.Framer
	handler Handler

	nextID  int64
	pending sync.Map // int64 -> chan *Response
}

// New wraps conn. handler may be nil if this side never receives requests.
func New(conn *pws.PWS, logger zerolog.Logger, handler Handler) *Client {
	c := &Client{
		conn:    conn,
		logger:  logger,
		framer:  jsonframer.New(),
		handler: handler,
	}
	go c.dispatchLoop()
	return c
}

// Call sends method(params) and waits for the matching response, honoring
// ctx's deadline or DefaultTimeout if ctx has none.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		raw = encoded
	}

	id := atomic.AddInt64(&c.nextID, 1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal request: %w", err)
	}

	replyCh := make(chan *Response, 1)
	c.pending.Store(id, replyCh)
	defer c.pending.Delete(id)

	if err := c.conn.Send(ctx, body, false); err != nil {
		return nil, fmt.Errorf("jsonrpc: send: %w", err)
	}

	select {
	case resp := <-replyCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify sends a one-way request with no id and expects no response.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		raw = encoded
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal notification: %w", err)
	}
	return c.conn.Send(ctx, body, false)
}

// Reply sends a successful response to a request previously delivered to
// Handler.
func (c *Client) Reply(ctx context.Context, id int64, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	body, err := json.Marshal(Response{JSONRPC: "2.0", ID: id, Result: raw})
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal response: %w", err)
	}
	return c.conn.Send(ctx, body, false)
}

func (c *Client) dispatchLoop() {
	for msg := range c.conn.Incoming() {
		for _, value := range c.framer.Feed(msg) {
			c.route(value)
		}
	}
	c.abortPending()
}

// abortPending unblocks every Call still waiting on a reply once the
// connection's Incoming() stream has closed.
func (c *Client) abortPending() {
	c.pending.Range(func(key, value interface{}) bool {
		id := key.(int64)
		ch := value.(chan *Response)
		ch <- &Response{JSONRPC: "2.0", ID: id, Error: errConnectionClosed}
		c.pending.Delete(key)
		return true
	})
}

func (c *Client) route(value json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(value, &probe); err != nil {
		c.logger.Warn().Err(err).Msg("jsonrpc: malformed frame discarded")
		return
	}

	if probe.Method != "" {
		var req Request
		if err := json.Unmarshal(value, &req); err != nil {
			c.logger.Warn().Err(err).Msg("jsonrpc: malformed request discarded")
			return
		}
		if c.handler != nil {
			c.handler(&req)
		}
		return
	}

	if probe.ID == nil {
		c.logger.Warn().Msg("jsonrpc: frame is neither a request nor a response")
		return
	}

	if v, ok := c.pending.Load(*probe.ID); ok {
		ch := v.(chan *Response)
		ch <- &Response{JSONRPC: "2.0", ID: *probe.ID, Result: probe.Result, Error: probe.Error}
	}
}
