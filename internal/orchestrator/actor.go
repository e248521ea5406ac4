package orchestrator

import "sync"

// actor serialises all work for one agent's conversation through an inbox
// channel drained by a single goroutine. Socket handlers and sends enqueue
// closures here, so per-agent state is only ever touched in order and
// different agents never share an execution context.
type actor struct {
	agentID string
	inbox   chan func()

	once sync.Once
	done chan struct{}
}

const actorInboxSize = 256

func newActor(agentID string) *actor {
	a := &actor{
		agentID: agentID,
		inbox:   make(chan func(), actorInboxSize),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *actor) loop() {
	for {
		select {
		case <-a.done:
			return
		case fn := <-a.inbox:
			fn()
		}
	}
}

// enqueue schedules fn on the actor's goroutine. Work submitted after stop
// is dropped. enqueue blocks if the inbox is full, which backpressures the
// socket read loop rather than reordering or dropping frames.
func (a *actor) enqueue(fn func()) {
	select {
	case <-a.done:
	case a.inbox <- fn:
	}
}

// stop terminates the actor's goroutine. Queued work may be dropped.
func (a *actor) stop() {
	a.once.Do(func() { close(a.done) })
}
