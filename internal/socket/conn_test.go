package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts a test websocket server whose handler receives each
// upgraded connection. Returns the ws:// URL.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		handler(ws)
	}))
	t.Cleanup(srv.Close)
	return strings.Replace(srv.URL, "http", "ws", 1)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestDialOpensAndSends(t *testing.T) {
	received := make(chan Envelope, 1)
	url := newWSServer(t, func(ws *websocket.Conn) {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		received <- env
		// Keep the connection alive until the client closes.
		_, _, _ = ws.ReadMessage()
	})

	opened := make(chan struct{})
	conn := Dial(context.Background(), url, Handlers{
		OnOpen: func() { close(opened) },
	}, Options{})
	defer conn.Close()

	waitFor(t, opened, "open")
	require.True(t, conn.IsOpen())

	conn.Send(NewEnvelope(TypeChatMessage, "sess-1", "task-1", ChatMessageData{
		Messages: []OutgoingMessage{{Role: "user", Content: "hello"}},
	}))

	select {
	case env := <-received:
		assert.Equal(t, TypeChatMessage, env.MessageType)
		assert.Equal(t, "sess-1", env.SessionID)
		assert.Equal(t, "task-1", env.TaskID)
		assert.NotEmpty(t, env.MessageID)

		var data ChatMessageData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Len(t, data.Messages, 1)
		assert.Equal(t, "hello", data.Messages[0].Content)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestChainOpenDefersSendAndChains(t *testing.T) {
	received := make(chan Envelope, 2)
	url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			var env Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	})

	var order []string
	done := make(chan struct{})
	conn := Dial(context.Background(), url, Handlers{
		OnOpen: func() { order = append(order, "original") },
	}, Options{})
	defer conn.Close()

	// Registered before the handshake completes on most runs; either way
	// the chained fn must run after the original handler.
	conn.ChainOpen(func() {
		order = append(order, "chained")
		conn.Ping()
		close(done)
	})

	waitFor(t, done, "chained open handler")
	require.Equal(t, []string{"original", "chained"}, order)

	select {
	case env := <-received:
		assert.Equal(t, TypePing, env.MessageType)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred ping never arrived")
	}
}

func TestChainOpenRunsImmediatelyWhenOpen(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		_, _, _ = ws.ReadMessage()
	})

	opened := make(chan struct{})
	conn := Dial(context.Background(), url, Handlers{
		OnOpen: func() { close(opened) },
	}, Options{})
	defer conn.Close()
	waitFor(t, opened, "open")

	ran := false
	conn.ChainOpen(func() { ran = true })
	require.True(t, ran, "ChainOpen on an open conn must run synchronously")
}

func TestSendBeforeOpenIsDropped(t *testing.T) {
	// Dial a port that is not listening; the conn never opens.
	conn := Dial(context.Background(), "ws://127.0.0.1:1/ws", Handlers{}, Options{
		HandshakeTimeout: 100 * time.Millisecond,
	})
	conn.Send(NewEnvelope(TypeChatMessage, "", "", nil)) // must not panic
	conn.Close()
}

func TestDialFailureEmitsErrorAndClose(t *testing.T) {
	errCh := make(chan error, 1)
	closed := make(chan struct{})

	conn := Dial(context.Background(), "ws://127.0.0.1:1/ws", Handlers{
		OnError: func(err error) { errCh <- err },
		OnClose: func(err error) { close(closed) },
	}, Options{HandshakeTimeout: 100 * time.Millisecond})

	waitFor(t, closed, "close after dial failure")
	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "dial")
	default:
		t.Fatal("expected an error before close")
	}
	assert.Equal(t, StateClosed, conn.State())
}

func TestDispatchRoutesTypedFrames(t *testing.T) {
	frames := []string{
		`{"message_type":"connection_ack","session_id":"sess-1"}`,
		`{"message_type":"chat_processing","task_id":"t1","data":{"status":"started","mode":"stream"}}`,
		`{"message_type":"chat_streaming","task_id":"t1","data":{"content":"Hi","is_final":false,"chunk_index":0}}`,
		`{"message_type":"chat_response","task_id":"t1","data":{"message":{"role":"assistant","content":"Hi there"},"status":"ok"}}`,
		`{"message_type":"chat_error","task_id":"t1","data":{"error":{"message":"rate limited"}}}`,
		`{"message_type":"pong"}`,
		`{"message_type":"totally_new_thing"}`,
	}

	url := newWSServer(t, func(ws *websocket.Conn) {
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_, _, _ = ws.ReadMessage()
	})

	var (
		acks       int
		processing []ProcessingData
		chunks     []StreamChunk
		responses  []ResponseData
		chatErrs   []ErrorData
		pongs      int
		all        []string
	)
	done := make(chan struct{})

	conn := Dial(context.Background(), url, Handlers{
		OnAck:        func(Envelope) { acks++ },
		OnProcessing: func(_ Envelope, d ProcessingData) { processing = append(processing, d) },
		OnStreaming:  func(_ Envelope, d StreamChunk) { chunks = append(chunks, d) },
		OnResponse:   func(_ Envelope, d ResponseData) { responses = append(responses, d) },
		OnChatError:  func(_ Envelope, d ErrorData) { chatErrs = append(chatErrs, d) },
		OnPong:       func(Envelope) { pongs++ },
		OnFrame: func(env Envelope) {
			all = append(all, env.MessageType)
			if len(all) == len(frames) {
				close(done)
			}
		},
	}, Options{})
	defer conn.Close()

	waitFor(t, done, "all frames")

	assert.Equal(t, 1, acks)
	require.Len(t, processing, 1)
	assert.Equal(t, "started", processing[0].Status)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hi", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	require.Len(t, responses, 1)
	assert.Equal(t, "Hi there", responses[0].Message.Content)
	require.Len(t, chatErrs, 1)
	assert.Equal(t, "rate limited", chatErrs[0].Error.Message)
	assert.Equal(t, 1, pongs)

	// The catch-all sees every frame, including the unrecognized type.
	assert.Equal(t, []string{
		TypeConnectionAck, TypeChatProcessing, TypeChatStreaming,
		TypeChatResponse, TypeChatError, TypePong, "totally_new_thing",
	}, all)
}

func TestMalformedFrameDoesNotKillDispatch(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("this is not json"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"message_type":"pong"}`))
		_, _, _ = ws.ReadMessage()
	})

	errCh := make(chan error, 1)
	pong := make(chan struct{})
	conn := Dial(context.Background(), url, Handlers{
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
		OnPong: func(Envelope) { close(pong) },
	}, Options{})
	defer conn.Close()

	waitFor(t, pong, "pong after malformed frame")
	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "malformed message")
	default:
		t.Fatal("expected a malformed-message error")
	}
}

func TestFramesAfterCloseAreIgnored(t *testing.T) {
	release := make(chan struct{})
	url := newWSServer(t, func(ws *websocket.Conn) {
		<-release
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"message_type":"pong"}`))
		time.Sleep(100 * time.Millisecond)
	})

	opened := make(chan struct{})
	var pongs int
	conn := Dial(context.Background(), url, Handlers{
		OnOpen: func() { close(opened) },
		OnPong: func(Envelope) { pongs++ },
	}, Options{})

	waitFor(t, opened, "open")
	conn.Close()
	close(release)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 0, pongs, "frame after close must be ignored")
	assert.Equal(t, StateClosed, conn.State())
}

func TestPeerCloseEmitsOnClose(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})

	closed := make(chan struct{})
	var closeErr error
	conn := Dial(context.Background(), url, Handlers{
		OnClose: func(err error) { closeErr = err; close(closed) },
	}, Options{})

	waitFor(t, closed, "peer close")
	assert.NoError(t, closeErr)
	assert.False(t, conn.IsOpen())
}
