package auth

import (
	"context"
	"sort"
)

// Event is the embeddable base for dispatchable payloads. It carries the
// stop-propagation flag, which is scoped to a single dispatch: Dispatch
// clears it before running handlers, so a payload published under several
// event names stops at most one of them.
type Event struct {
	stopped bool
}

// StopPropagation prevents handlers after the current one from running.
func (e *Event) StopPropagation() {
	e.stopped = true
}

func (e *Event) resetPropagation() {
	e.stopped = false
}

// PropagationStopped reports whether a handler halted the dispatch.
func (e *Event) PropagationStopped() bool {
	return e.stopped
}

type subscription struct {
	handler  Handler
	priority int
	seq      int
}

// EventBus is the default Dispatcher: synchronous, in-process, priority
// ordered. Handlers run on the publishing goroutine; a handler error aborts
// the dispatch and propagates to the publisher. Subscription happens during
// wiring, before requests are served, so no locking is done on dispatch.
type EventBus struct {
	subs map[string][]subscription
	seq  int
}

var _ Dispatcher = (*EventBus)(nil)

// NewEventBus returns an empty dispatcher.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: map[string][]subscription{},
	}
}

// Subscribe registers handler for the named event. Higher priority runs
// first; equal priorities run in subscription order.
func (b *EventBus) Subscribe(name string, handler Handler, priority int) {
	if handler == nil {
		return
	}
	b.seq++
	list := append(b.subs[name], subscription{
		handler:  handler,
		priority: priority,
		seq:      b.seq,
	})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.subs[name] = list
}

// Dispatch invokes all handlers subscribed to name, in order, until one of
// them errors or stops propagation.
func (b *EventBus) Dispatch(ctx context.Context, name string, event EventPayload) error {
	if r, ok := event.(interface{ resetPropagation() }); ok {
		r.resetPropagation()
	}
	for _, sub := range b.subs[name] {
		if event != nil && event.PropagationStopped() {
			break
		}
		if err := sub.handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
