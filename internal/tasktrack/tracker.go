// Package tasktrack records the lifecycle of chat tasks per agent.
//
// A task moves forward through processing -> streaming -> completed and
// never backward; streaming is skipped when the service answers with a
// single final response. Entries are additive for the life of a session
// and are never deleted, so a late or duplicate frame for an old task can
// be recognised as such.
package tasktrack

import "sync"

// Status is a task's lifecycle state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusStreaming  Status = "streaming"
	StatusCompleted  Status = "completed"
)

// rank orders statuses so transitions only ever move forward.
func rank(s Status) int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusStreaming:
		return 2
	case StatusCompleted:
		return 3
	}
	return 0
}

// Tracker maintains per-agent, per-task statuses. Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]map[string]Status // agentID -> taskID -> status
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{tasks: make(map[string]map[string]Status)}
}

// OnProcessing marks the task as processing unless it already advanced.
func (t *Tracker) OnProcessing(agentID, taskID string) {
	t.advance(agentID, taskID, StatusProcessing)
}

// OnStreaming marks the task as streaming unless it already completed.
func (t *Tracker) OnStreaming(agentID, taskID string) {
	t.advance(agentID, taskID, StatusStreaming)
}

// OnResponse marks the task as completed.
func (t *Tracker) OnResponse(agentID, taskID string) {
	t.advance(agentID, taskID, StatusCompleted)
}

func (t *Tracker) advance(agentID, taskID string, next Status) {
	if agentID == "" || taskID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	agent, ok := t.tasks[agentID]
	if !ok {
		agent = make(map[string]Status)
		t.tasks[agentID] = agent
	}
	if current, ok := agent[taskID]; ok && rank(current) >= rank(next) {
		return
	}
	agent[taskID] = next
}

// Get returns the task's status, or "" when the task is unknown.
func (t *Tracker) Get(agentID, taskID string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tasks[agentID][taskID]
}

// Completed reports whether the task has reached its terminal state.
func (t *Tracker) Completed(agentID, taskID string) bool {
	return t.Get(agentID, taskID) == StatusCompleted
}

// Thinking reports whether the agent should show a "thinking" indicator:
// at least one task still processing and none streaming yet. The first
// partial output suppresses the indicator even while other tasks for the
// same agent are still only processing.
func (t *Tracker) Thinking(agentID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var processing, streaming bool
	for _, status := range t.tasks[agentID] {
		switch status {
		case StatusProcessing:
			processing = true
		case StatusStreaming:
			streaming = true
		}
	}
	return processing && !streaming
}
