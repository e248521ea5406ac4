// Package socket manages the bidirectional chat connections. One Conn wraps
// one websocket to the chat service; a Manager owns at most one live Conn
// per agent and replaces closed ones.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/chat-client/internal/logging"
)

// State is the lifecycle state of a Conn.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Handlers receives inbound frames and lifecycle events for one Conn.
// Any field may be nil. Handlers run on the connection's read goroutine,
// one frame at a time, in arrival order.
type Handlers struct {
	// OnOpen fires once when the websocket handshake completes.
	OnOpen func()
	// OnClose fires once when the connection is torn down. err is nil for
	// a locally initiated close.
	OnClose func(err error)
	// OnError observes transport errors and malformed inbound frames. An
	// error does not itself close the connection; the transport's own
	// close event does.
	OnError func(err error)

	OnAck        func(Envelope)
	OnProcessing func(Envelope, ProcessingData)
	OnStreaming  func(Envelope, StreamChunk)
	OnResponse   func(Envelope, ResponseData)
	OnChatError  func(Envelope, ErrorData)
	OnPong       func(Envelope)

	// OnFrame is the catch-all observer. Every well-formed inbound frame
	// reaches it, recognized or not; unrecognized types reach only it.
	OnFrame func(Envelope)
}

// Options tunes connection establishment.
type Options struct {
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 1024
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 1024
	}
	return o
}

// Conn is one live chat socket. It is created in the connecting state and
// dials asynchronously; callers that need to send before the handshake
// completes chain an open handler via ChainOpen.
type Conn struct {
	url string
	log *slog.Logger

	mu        sync.Mutex
	state     State
	ws        *websocket.Conn
	onOpen    func()
	openFired bool
	handlers  Handlers

	// writeMu serialises writes to the underlying websocket.
	writeMu sync.Mutex
}

// Dial starts a connection attempt to url and returns immediately. The
// returned Conn is in the connecting state; handlers.OnOpen (plus any
// ChainOpen additions) fires when the handshake completes, handlers.OnClose
// when it fails or the socket later closes.
func Dial(ctx context.Context, url string, handlers Handlers, opts Options) *Conn {
	opts = opts.withDefaults()

	c := &Conn{
		url:      url,
		log:      logging.Component("socket").With("url", url),
		state:    StateConnecting,
		onOpen:   handlers.OnOpen,
		handlers: handlers,
	}

	go c.dial(ctx, opts)
	return c
}

func (c *Conn) dial(ctx context.Context, opts Options) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
	}

	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.log.Warn("dial failed", "error", err)
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.emitError(fmt.Errorf("socket: dial %s: %w", c.url, err))
		c.emitClose(err)
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Closed while the handshake was in flight.
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.state = StateOpen
	c.mu.Unlock()

	c.log.Debug("connection open")

	// Drain the open-handler chain. Handlers may chain further handlers
	// while earlier ones run (ChainOpen during OnOpen), so loop until the
	// chain is empty before marking the open event as fired.
	for {
		c.mu.Lock()
		fn := c.onOpen
		c.onOpen = nil
		if fn == nil {
			c.openFired = true
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		fn()
	}

	c.readLoop(ws)
}

// IsOpen reports whether the connection is currently open.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ChainOpen registers fn to run when the connection opens, after any
// previously registered open handler. If the connection is already open,
// fn runs immediately; if it is closed, fn is dropped.
func (c *Conn) ChainOpen(fn func()) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if c.state == StateOpen && c.openFired {
		c.mu.Unlock()
		fn()
		return
	}
	prev := c.onOpen
	c.onOpen = func() {
		if prev != nil {
			prev()
		}
		fn()
	}
	c.mu.Unlock()
}

// Send writes an envelope to the socket. It silently drops the frame when
// the connection is not open; callers check IsOpen or use ChainOpen.
func (c *Conn) Send(env Envelope) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		c.log.Debug("send dropped, connection not open", "messageType", env.MessageType)
		return
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	err := ws.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("write failed", "messageType", env.MessageType, "error", err)
		c.emitError(fmt.Errorf("socket: write: %w", err))
	}
}

// Ping sends a lightweight keepalive frame. Advisory only; no pong is
// required for correctness.
func (c *Conn) Ping() {
	c.Send(NewEnvelope(TypePing, "", "", PingData{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}))
}

// Close initiates shutdown. Frames arriving after Close are ignored.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	prevState := c.state
	c.state = StateClosed
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}

	// A conn closed before it ever opened emits OnClose from the dial
	// goroutine instead.
	if prevState == StateOpen {
		c.emitClose(nil)
	}
}

// readLoop reads and dispatches inbound frames one at a time until the
// socket closes. Runs on the dial goroutine.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.state == StateClosed
			c.state = StateClosed
			c.mu.Unlock()

			if wasClosed {
				// Locally initiated close; OnClose already emitted.
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("connection closed by peer")
				c.emitClose(nil)
			} else {
				c.log.Warn("read failed", "error", err)
				c.emitError(fmt.Errorf("socket: read: %w", err))
				c.emitClose(err)
			}
			ws.Close()
			return
		}

		if !c.IsOpen() {
			// Frame raced a local Close; drop it.
			continue
		}
		c.dispatch(payload)
	}
}

// dispatch parses one inbound frame and routes it to the typed handlers.
// A parse failure reaches OnError and never stops the loop.
func (c *Conn) dispatch(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.emitError(fmt.Errorf("socket: malformed message: %w", err))
		return
	}

	h := c.currentHandlers()

	switch env.MessageType {
	case TypeConnectionAck:
		if h.OnAck != nil {
			h.OnAck(env)
		}
	case TypeChatProcessing:
		var data ProcessingData
		c.decodeData(env, &data)
		if h.OnProcessing != nil {
			h.OnProcessing(env, data)
		}
	case TypeChatStreaming:
		var data StreamChunk
		c.decodeData(env, &data)
		if h.OnStreaming != nil {
			h.OnStreaming(env, data)
		}
	case TypeChatResponse:
		var data ResponseData
		c.decodeData(env, &data)
		if h.OnResponse != nil {
			h.OnResponse(env, data)
		}
	case TypeChatError:
		var data ErrorData
		c.decodeData(env, &data)
		if h.OnChatError != nil {
			h.OnChatError(env, data)
		}
	case TypePong:
		if h.OnPong != nil {
			h.OnPong(env)
		}
	default:
		c.log.Debug("unrecognized message type", "messageType", env.MessageType)
	}

	// Catch-all observer sees every well-formed frame.
	if h.OnFrame != nil {
		h.OnFrame(env)
	}
}

func (c *Conn) decodeData(env Envelope, out any) {
	if len(env.Data) == 0 {
		return
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.emitError(fmt.Errorf("socket: malformed %s data: %w", env.MessageType, err))
	}
}

func (c *Conn) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *Conn) emitError(err error) {
	if h := c.currentHandlers(); h.OnError != nil {
		h.OnError(err)
	}
}

func (c *Conn) emitClose(err error) {
	if h := c.currentHandlers(); h.OnClose != nil {
		h.OnClose(err)
	}
}
