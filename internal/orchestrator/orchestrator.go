// Package orchestrator wires the chat client together: it resolves the
// target agent, manages REST sessions and websocket connections per agent,
// routes inbound frames into the task tracker and transcript store, and
// tells the UI when something changed.
//
// Each agent's conversation runs on its own actor goroutine with an inbox
// channel. Frames for one agent are processed strictly in arrival order;
// agents never block each other and never share mutable state.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/workspace/chat-client/internal/chatapi"
	"github.com/workspace/chat-client/internal/history"
	"github.com/workspace/chat-client/internal/logging"
	"github.com/workspace/chat-client/internal/profile"
	"github.com/workspace/chat-client/internal/socket"
	"github.com/workspace/chat-client/internal/tasktrack"
	"github.com/workspace/chat-client/internal/transcript"
	"github.com/workspace/chat-client/internal/wsurl"
)

// Notify is the callback the UI registers to learn that an agent's visible
// state (transcript, thinking indicator, connection) changed. It may be
// invoked from multiple goroutines.
type Notify func(agentID string)

// Options configures an Orchestrator.
type Options struct {
	// ServiceURL is the chat service base URL, used to normalize the
	// websocket URLs the service hands back.
	ServiceURL string
	// Metadata is attached to session init calls and outbound messages.
	Metadata map[string]any
	// Socket tunes websocket establishment.
	Socket socket.Options
	// PingInterval is how often open sockets are pinged. Zero disables
	// keepalives.
	PingInterval time.Duration
	// HistoryLimit caps how many persisted messages seed each transcript.
	HistoryLimit int
}

// conversation is the per-agent bookkeeping. session and pendingTaskID are
// written on the actor goroutine; the mutex exists so Close can read the
// session from outside it.
type conversation struct {
	actor *actor

	mu            sync.Mutex
	session       *chatapi.Session
	pendingTaskID string
}

func (c *conversation) getSession() *chatapi.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *conversation) setSession(s *chatapi.Session) {
	c.mu.Lock()
	c.session = s
	c.pendingTaskID = s.TaskID
	c.mu.Unlock()
}

// takeTaskID consumes the unclaimed task id from session init, if any.
func (c *conversation) takeTaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.pendingTaskID
	c.pendingTaskID = ""
	return id
}

// Orchestrator coordinates sessions, sockets, tasks and transcripts for all
// of a profile's agents.
type Orchestrator struct {
	opts Options
	api  *chatapi.Client
	prof *profile.Profile
	hist *history.Store
	log  *slog.Logger

	conns       *socket.Manager
	tasks       *tasktrack.Tracker
	transcripts *transcript.Store
	notify      Notify

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	selected string
	convs    map[string]*conversation
	closed   bool
}

// New creates an orchestrator for the given profile. Persisted history is
// loaded into each agent's transcript before any live traffic; a nil
// history store skips persistence entirely. notify may be nil.
func New(opts Options, api *chatapi.Client, prof *profile.Profile, hist *history.Store, notify Notify) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:        opts,
		api:         api,
		prof:        prof,
		hist:        hist,
		log:         logging.Component("orchestrator"),
		conns:       socket.NewManager(opts.Socket),
		tasks:       tasktrack.New(),
		transcripts: transcript.NewStore(),
		notify:      notify,
		ctx:         ctx,
		cancel:      cancel,
		convs:       make(map[string]*conversation),
	}

	for _, agent := range prof.Agents {
		msgs, err := hist.Recent(agent.ID, opts.HistoryLimit)
		if err != nil {
			o.log.Warn("loading history failed", "agentID", agent.ID, "error", err)
			continue
		}
		o.transcripts.Seed(agent.ID, msgs)
		if err := hist.Prune(agent.ID, opts.HistoryLimit); err != nil {
			o.log.Warn("pruning history failed", "agentID", agent.ID, "error", err)
		}
	}

	if opts.PingInterval > 0 {
		o.wg.Add(1)
		go o.pingLoop()
	}
	return o
}

// Profile returns the profile this orchestrator serves.
func (o *Orchestrator) Profile() *profile.Profile { return o.prof }

// Agents lists the chattable agents.
func (o *Orchestrator) Agents() []profile.Agent { return o.prof.Agents }

// Messages returns the agent's current transcript.
func (o *Orchestrator) Messages(agentID string) []transcript.Message {
	return o.transcripts.Messages(agentID)
}

// Thinking reports whether the agent's thinking indicator should show.
func (o *Orchestrator) Thinking(agentID string) bool {
	return o.tasks.Thinking(agentID)
}

// Connected reports whether the agent currently has an open socket.
func (o *Orchestrator) Connected(agentID string) bool {
	conn, ok := o.conns.Get(agentID)
	return ok && conn.IsOpen()
}

// SelectedAgent returns the currently selected agent id, defaulting to the
// profile's first agent.
func (o *Orchestrator) SelectedAgent() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected != "" {
		return o.selected
	}
	if agent, ok := o.prof.FirstAgent(); ok {
		return agent.ID
	}
	return ""
}

// SelectAgent switches the default chat target. Unknown ids are ignored.
func (o *Orchestrator) SelectAgent(agentID string) bool {
	if _, ok := o.prof.AgentByID(agentID); !ok {
		return false
	}
	o.mu.Lock()
	o.selected = agentID
	o.mu.Unlock()
	o.emit(agentID)
	return true
}

// Send sends a user message. agentID overrides the selected agent when
// non-empty. The user message is appended to the transcript immediately;
// session setup, connection dialing and the actual network send happen on
// the agent's actor goroutine. Failures surface as assistant-role error
// messages in the transcript, never as a return value.
//
// Send returns the resolved agent id, or "" when the profile has no such
// agent to talk to.
func (o *Orchestrator) Send(text, agentID string) string {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ""
	}

	agent, ok := o.resolveAgent(agentID)
	if !ok {
		o.log.Warn("no agent to send to", "override", agentID)
		return ""
	}
	if strings.TrimSpace(text) == "" {
		return agent.ID
	}

	msg := o.transcripts.AppendUser(agent.ID, text)
	if err := o.hist.Append(agent.ID, msg); err != nil {
		o.log.Warn("persisting user message failed", "agentID", agent.ID, "error", err)
	}
	o.emit(agent.ID)

	conv := o.conversationFor(agent.ID)
	if conv == nil {
		return agent.ID
	}
	conv.actor.enqueue(func() { o.deliver(conv, agent.ID, text) })
	return agent.ID
}

// deliver runs on the agent's actor goroutine: ensure a session, ensure a
// task id, ensure a connection, then send (deferring until the handshake
// completes when necessary).
func (o *Orchestrator) deliver(conv *conversation, agentID, text string) {
	session := conv.getSession()
	if session == nil {
		created, err := o.api.InitSession(o.ctx, agentID, o.opts.Metadata)
		if err != nil {
			o.failSend(agentID, "", "starting the chat session failed", err)
			return
		}
		conv.setSession(created)
		session = created
	}

	taskID := conv.takeTaskID()
	if taskID == "" {
		task, err := o.api.CreateTask(o.ctx, session.SessionID)
		if err != nil {
			o.failSend(agentID, "", "starting a new task failed", err)
			return
		}
		taskID = task.TaskID
	}

	conn, ok := o.conns.Get(agentID)
	if !ok {
		url := wsurl.Normalize(session.SocketURL, o.opts.ServiceURL)
		o.log.Debug("dialing chat socket", "agentID", agentID, "url", url)
		conn = o.conns.Connect(o.ctx, agentID, url, o.handlersFor(agentID))
	}

	env := socket.NewEnvelope(socket.TypeChatMessage, session.SessionID, taskID, socket.ChatMessageData{
		Messages: []socket.OutgoingMessage{{
			Role:    string(transcript.RoleUser),
			Content: text,
		}},
		Metadata: o.opts.Metadata,
	})
	conn.ChainOpen(func() { conn.Send(env) })
}

// failSend converts a send-path failure into a visible assistant message.
func (o *Orchestrator) failSend(agentID, taskID, what string, err error) {
	o.log.Warn("send failed", "agentID", agentID, "error", err)
	detail := err.Error()
	var se *chatapi.SessionError
	if errors.As(err, &se) && se.Detail != "" {
		detail = se.Detail
	}
	o.transcripts.FailTask(agentID, taskID, "Error: "+what+": "+detail)
	o.emit(agentID)
}

// handlersFor builds the socket handlers for one agent. Registered once at
// connection creation; every handler hops onto the agent's actor goroutine
// so frames are applied strictly in order.
func (o *Orchestrator) handlersFor(agentID string) socket.Handlers {
	conv := o.conversationFor(agentID)
	if conv == nil {
		return socket.Handlers{}
	}
	run := conv.actor.enqueue

	return socket.Handlers{
		OnOpen: func() {
			o.log.Info("chat socket open", "agentID", agentID)
			o.emit(agentID)
		},
		OnClose: func(err error) {
			run(func() {
				if err != nil {
					o.log.Warn("chat socket closed", "agentID", agentID, "error", err)
				} else {
					o.log.Debug("chat socket closed", "agentID", agentID)
				}
				o.emit(agentID)
			})
		},
		OnError: func(err error) {
			run(func() {
				o.log.Warn("chat socket error", "agentID", agentID, "error", err)
				o.transcripts.AppendAssistant(agentID, "Error: connection problem: "+err.Error())
				o.emit(agentID)
			})
		},
		OnAck: func(env socket.Envelope) {
			o.log.Debug("connection acknowledged", "agentID", agentID, "sessionID", env.SessionID)
		},
		OnProcessing: func(env socket.Envelope, _ socket.ProcessingData) {
			run(func() {
				o.tasks.OnProcessing(agentID, env.TaskID)
				o.emit(agentID)
			})
		},
		OnStreaming: func(env socket.Envelope, chunk socket.StreamChunk) {
			run(func() {
				if o.tasks.Completed(agentID, env.TaskID) {
					o.log.Debug("chunk after completion ignored",
						"agentID", agentID, "taskID", env.TaskID, "chunkIndex", chunk.ChunkIndex)
					return
				}
				o.tasks.OnStreaming(agentID, env.TaskID)
				if _, ok := o.transcripts.ApplyChunk(agentID, env.TaskID, chunk.Content); ok {
					o.emit(agentID)
				}
			})
		},
		OnResponse: func(env socket.Envelope, data socket.ResponseData) {
			run(func() {
				o.tasks.OnResponse(agentID, env.TaskID)
				msg, ok := o.transcripts.ApplyFinal(agentID, env.TaskID, data.Message.Content)
				if !ok {
					return
				}
				if err := o.hist.Append(agentID, msg); err != nil {
					o.log.Warn("persisting assistant message failed", "agentID", agentID, "error", err)
				}
				o.emit(agentID)
			})
		},
		OnChatError: func(env socket.Envelope, data socket.ErrorData) {
			run(func() {
				text := data.Error.Message
				if text == "" {
					text = "the agent reported an error"
				}
				o.tasks.OnResponse(agentID, env.TaskID)
				o.transcripts.FailTask(agentID, env.TaskID, "Error: "+text)
				o.emit(agentID)
			})
		},
		OnPong: func(socket.Envelope) {
			o.log.Debug("pong", "agentID", agentID)
		},
	}
}

// conversationFor returns the agent's conversation, creating it and its
// actor on first use. Returns nil after Close.
func (o *Orchestrator) conversationFor(agentID string) *conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	conv, ok := o.convs[agentID]
	if !ok {
		conv = &conversation{actor: newActor(agentID)}
		o.convs[agentID] = conv
	}
	return conv
}

func (o *Orchestrator) resolveAgent(override string) (profile.Agent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if override != "" {
		agent, ok := o.prof.AgentByID(override)
		if ok {
			o.selected = agent.ID
		}
		return agent, ok
	}
	if o.selected != "" {
		if agent, ok := o.prof.AgentByID(o.selected); ok {
			return agent, true
		}
	}
	agent, ok := o.prof.FirstAgent()
	if ok {
		o.selected = agent.ID
	}
	return agent, ok
}

// SetNotify replaces the update callback. Used when the UI is constructed
// after the orchestrator, e.g. a bubbletea program that needs to exist
// before it can receive messages.
func (o *Orchestrator) SetNotify(n Notify) {
	o.mu.Lock()
	o.notify = n
	o.mu.Unlock()
}

func (o *Orchestrator) emit(agentID string) {
	o.mu.Lock()
	n := o.notify
	o.mu.Unlock()
	if n != nil {
		n(agentID)
	}
}

// pingLoop keepalives every open socket until Close.
func (o *Orchestrator) pingLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			ids := make([]string, 0, len(o.convs))
			for id := range o.convs {
				ids = append(ids, id)
			}
			o.mu.Unlock()
			for _, id := range ids {
				if conn, ok := o.conns.Get(id); ok && conn.IsOpen() {
					conn.Ping()
				}
			}
		}
	}
}

// Close tears everything down: it stops the keepalive loop, deletes live
// sessions best-effort, closes every socket and stops the actors. Safe to
// call once; the orchestrator is unusable afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	convs := make(map[string]*conversation, len(o.convs))
	for id, conv := range o.convs {
		convs[id] = conv
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	for agentID, conv := range convs {
		if session := conv.getSession(); session != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := o.api.DeleteSession(ctx, session.SessionID); err != nil {
				o.log.Debug("session delete failed", "agentID", agentID, "error", err)
			}
			cancel()
		}
	}

	o.conns.CloseAll()
	for _, conv := range convs {
		conv.actor.stop()
	}
}
