// Package transcript holds the per-agent conversation state the UI renders
// and assembles streamed assistant output into it.
//
// For every task the service runs, exactly one assistant message ever
// appears in the transcript: streamed chunks append to a draft created on
// the first chunk, and the terminal response either fills in the content or
// leaves the streamed text alone when it carries none. Once a task's
// message is completed it is immutable; stale frames for that task are
// dropped.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one visible entry in an agent's transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// draft links a task to the in-progress assistant message it populates.
type draft struct {
	messageID string
	done      bool
}

// Store keeps the transcripts of all agents plus the draft bookkeeping the
// assembler needs. Messages are ordered by append time, never by network
// arrival of individual frames. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages map[string][]*Message        // agentID -> ordered transcript
	drafts   map[string]map[string]*draft // agentID -> taskID -> draft
}

// NewStore creates an empty transcript store.
func NewStore() *Store {
	return &Store{
		messages: make(map[string][]*Message),
		drafts:   make(map[string]map[string]*draft),
	}
}

// AppendUser appends a user message and returns a copy of it.
func (s *Store) AppendUser(agentID, content string) Message {
	return s.append(agentID, RoleUser, content)
}

// AppendAssistant appends a standalone assistant message, outside any task.
// Used for synthetic error messages injected by the orchestrator.
func (s *Store) AppendAssistant(agentID, content string) Message {
	return s.append(agentID, RoleAssistant, content)
}

func (s *Store) append(agentID string, role Role, content string) Message {
	msg := &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.messages[agentID] = append(s.messages[agentID], msg)
	s.mu.Unlock()
	return *msg
}

// Seed prepends previously persisted messages to an agent's transcript.
// Intended for history loaded at startup, before any live traffic.
func (s *Store) Seed(agentID string, history []Message) {
	if len(history) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seeded := make([]*Message, 0, len(history)+len(s.messages[agentID]))
	for i := range history {
		msg := history[i]
		seeded = append(seeded, &msg)
	}
	s.messages[agentID] = append(seeded, s.messages[agentID]...)
}

// ApplyChunk appends a streamed content fragment to the task's draft
// message, creating the draft on the first chunk. Chunks are applied in
// arrival order; the store does not reorder them. Returns the updated
// message and true, or false when the task already completed and the chunk
// must be ignored.
func (s *Store) ApplyChunk(agentID, taskID, content string) (Message, bool) {
	if taskID == "" {
		return Message{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.draftLocked(agentID, taskID)
	if d.done {
		return Message{}, false
	}
	if d.messageID == "" {
		msg := &Message{
			ID:        uuid.New().String(),
			Role:      RoleAssistant,
			CreatedAt: time.Now().UTC(),
		}
		s.messages[agentID] = append(s.messages[agentID], msg)
		d.messageID = msg.ID
	}

	msg := s.findLocked(agentID, d.messageID)
	if msg == nil {
		return Message{}, false
	}
	msg.Content += content
	return *msg, true
}

// ApplyFinal records the terminal response for a task. When a draft exists
// its content is overwritten only if finalContent is non-empty, preserving
// accumulated streamed text when the terminal frame carries none. Without a
// draft the assistant message is created directly. The task's message is
// immutable afterwards.
func (s *Store) ApplyFinal(agentID, taskID, finalContent string) (Message, bool) {
	if taskID == "" {
		return Message{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.draftLocked(agentID, taskID)
	if d.done {
		return Message{}, false
	}
	d.done = true

	if d.messageID == "" {
		msg := &Message{
			ID:        uuid.New().String(),
			Role:      RoleAssistant,
			Content:   finalContent,
			CreatedAt: time.Now().UTC(),
		}
		s.messages[agentID] = append(s.messages[agentID], msg)
		d.messageID = msg.ID
		return *msg, true
	}

	msg := s.findLocked(agentID, d.messageID)
	if msg == nil {
		return Message{}, false
	}
	if strings.TrimSpace(finalContent) != "" {
		msg.Content = finalContent
	}
	return *msg, true
}

// FailTask marks a task done (so trailing frames are dropped) and appends
// an assistant-role error message to the transcript.
func (s *Store) FailTask(agentID, taskID, errText string) Message {
	s.mu.Lock()
	if taskID != "" {
		s.draftLocked(agentID, taskID).done = true
	}
	s.mu.Unlock()
	return s.AppendAssistant(agentID, errText)
}

// Messages returns a copy of the agent's transcript in append order.
func (s *Store) Messages(agentID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.messages[agentID]))
	for _, msg := range s.messages[agentID] {
		out = append(out, *msg)
	}
	return out
}

// TaskMessageID returns the id of the message assembled for a task, if any.
func (s *Store) TaskMessageID(agentID, taskID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.drafts[agentID][taskID]; ok && d.messageID != "" {
		return d.messageID, true
	}
	return "", false
}

func (s *Store) draftLocked(agentID, taskID string) *draft {
	agent, ok := s.drafts[agentID]
	if !ok {
		agent = make(map[string]*draft)
		s.drafts[agentID] = agent
	}
	d, ok := agent[taskID]
	if !ok {
		d = &draft{}
		agent[taskID] = d
	}
	return d
}

func (s *Store) findLocked(agentID, messageID string) *Message {
	msgs := s.messages[agentID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == messageID {
			return msgs[i]
		}
	}
	return nil
}
