package statechart

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventReset returns every region to its initial state and the context to its
// defaults. Pending invocations are discarded. Machine instances are never
// destroyed mid-session; this is the only wholesale reset mechanism.
const EventReset = "statechart.reset"

// ErrAlreadyStarted is returned when Start is called twice on one actor.
var ErrAlreadyStarted = errors.New("actor already started")

// queue is the actor's FIFO event buffer. Events for one machine are
// processed strictly in push order.
type queue struct {
	mu   sync.Mutex
	fifo []Event
}

func (q *queue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo = append(q.fifo, e)
}

func (q *queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return Event{}, false
	}
	e := q.fifo[0]
	q.fifo = q.fifo[1:]
	return e, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// gate serializes queue draining. At most one goroutine holds it, so one
// event is fully processed before the next is taken. wait returns a channel
// that closes when the current (or next) drain cycle completes, which is how
// Dispatch callers observe completion.
type gate struct {
	internal sync.Mutex
	signal   atomic.Value
}

func (g *gate) lock() {
	g.internal.Lock()
	g.signal.Store(make(chan struct{}))
}

func (g *gate) tryLock() bool {
	if g.internal.TryLock() {
		g.signal.Store(make(chan struct{}))
		return true
	}
	return false
}

func (g *gate) unlock() {
	signal := g.signal.Load().(chan struct{})
	g.internal.Unlock()
	close(signal)
}

func (g *gate) wait() <-chan struct{} {
	return g.signal.Load().(chan struct{})
}

// Actor is a running machine instance: the definition, its current state
// value and context, the event queue and the bookkeeping for in-flight
// invoked effects. Create with NewActor, wire it into the orchestrator, then
// Start it.
type Actor[C Cloneable[C]] struct {
	machine *Machine[C]
	log     zerolog.Logger

	mu    sync.RWMutex
	value StateValue
	ctx   C
	gens  map[string]uint64

	queue      queue
	processing gate
	// prestart closes once Start has drained the events queued before it ran,
	// so pre-start Dispatch callers never observe an empty queue early.
	prestart chan struct{}
	base     context.Context
	started  atomic.Bool
}

// NewActor validates the definition and builds an actor for it. An invalid
// definition is a programmer error and panics, mirroring the fatal
// configuration policy of the registry.
func NewActor[C Cloneable[C]](m *Machine[C], log zerolog.Logger) *Actor[C] {
	if err := m.Validate(); err != nil {
		panic(fmt.Errorf("statechart: invalid machine definition: %w", err))
	}
	a := &Actor[C]{
		machine:  m,
		log:      log.With().Str("machine", m.ID).Logger(),
		gens:     map[string]uint64{},
		prestart: make(chan struct{}),
	}
	a.processing.signal.Store(a.prestart)
	return a
}

// ID returns the machine identifier.
func (a *Actor[C]) ID() string {
	return a.machine.ID
}

// Start enters every region's initial state and processes any events queued
// before startup. It may be called once per actor.
func (a *Actor[C]) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	a.base = ctx
	a.processing.lock()
	a.run(true)
	a.drainPending()
	close(a.prestart)
	return nil
}

// Dispatch queues an event for this actor and returns a channel that closes
// when the queue has been drained. Events dispatched before Start are
// processed during Start, in order; their channel stays open until Start has
// done so.
func (a *Actor[C]) Dispatch(ctx context.Context, e Event) <-chan struct{} {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	a.queue.push(e)
	if a.started.Load() && a.processing.tryLock() {
		go func() {
			a.run(false)
			a.drainPending()
		}()
	}
	return a.processing.wait()
}

// Snapshot returns a read-only copy of the actor's state value and context.
// The copy is defensive; callers cannot reach the live context through it.
func (a *Actor[C]) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		MachineID:  a.machine.ID,
		StateValue: a.value.Clone(),
		Context:    a.ctx.Clone(),
	}
}

// State returns the current state of one region.
func (a *Actor[C]) State(region string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value[region]
}

// ContextValue returns a defensive copy of the current context.
func (a *Actor[C]) ContextValue() C {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx.Clone()
}

// run holds the processing gate: optionally performs initial entry, then
// drains the queue one event at a time. A panic in a guard, reducer or effect
// is recovered and logged; the machine stays alive and sibling machines are
// unaffected.
func (a *Actor[C]) run(initial bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic while processing event")
		}
		a.processing.unlock()
	}()
	if initial {
		res := stepInitial(a.machine, a.machine.InitialContext())
		a.commit(res, Event{Type: initEvent})
	}
	for {
		e, ok := a.queue.pop()
		if !ok {
			return
		}
		a.processEvent(e)
	}
}

// drainPending catches events that raced with the end of a drain cycle.
func (a *Actor[C]) drainPending() {
	for a.queue.len() > 0 && a.processing.tryLock() {
		a.run(false)
	}
}

func (a *Actor[C]) processEvent(e Event) {
	switch e.Type {
	case settleEvent:
		s, ok := e.Data.(settlement)
		if !ok {
			return
		}
		if a.gens[s.Region] != s.Gen {
			a.log.Debug().
				Str("region", s.Region).
				Str("state", s.State).
				Msg("stale effect settlement dropped")
			return
		}
		// Reducers get a deep copy so concurrent snapshot readers never see a
		// half-applied merge through a shared backing array.
		res := stepSettlement(a.machine, a.value, a.ctx.Clone(), s)
		a.commit(res, e)
	case EventReset:
		res := stepInitial(a.machine, a.machine.InitialContext())
		for i := range a.machine.Regions {
			// Discard whatever was in flight; reset never waits.
			res.Cancels = append(res.Cancels, a.machine.Regions[i].Name)
		}
		a.log.Debug().Msg("machine reset")
		a.commit(res, e)
	default:
		res := step(a.machine, a.value, a.ctx.Clone(), e)
		if !res.Taken {
			a.log.Debug().Str("event", e.Type).Msg("event ignored in current state")
			return
		}
		a.commit(res, e)
	}
}

// commit publishes the step result, launches any new invocations and runs the
// scheduled side effects against a copy of the committed context. Effects run
// strictly after the state/context update, so a handler can never observe its
// own machine mid-transition.
func (a *Actor[C]) commit(res stepResult[C], e Event) {
	type launch struct {
		start invokeStart[C]
		gen   uint64
	}
	var launches []launch

	a.mu.Lock()
	a.value = res.Value
	a.ctx = res.Context
	for _, region := range res.Cancels {
		a.gens[region]++
	}
	for _, start := range res.Starts {
		a.gens[start.Region]++
		launches = append(launches, launch{start: start, gen: a.gens[start.Region]})
	}
	a.mu.Unlock()

	a.log.Debug().
		Str("event", e.Type).
		Interface("state", res.Value).
		Msg("transition committed")

	for _, l := range launches {
		go a.invoke(l.start, l.gen)
	}

	if len(res.Effects) > 0 {
		committed := res.Context.Clone()
		for _, binding := range res.Effects {
			binding.fn(committed, binding.e)
		}
	}
}

// invoke runs one asynchronous effect to settlement and feeds the outcome
// back through the queue. The generation captured at launch lets the drain
// loop discard the settlement if the owning state was exited (or re-entered)
// in the meantime. The operation itself is never retried here; retry is a
// domain decision.
func (a *Actor[C]) invoke(start invokeStart[C], gen uint64) {
	s := settlement{Region: start.Region, State: start.State, Gen: gen}
	func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error().
					Interface("panic", r).
					Str("state", start.State).
					Msg("panic in invoked effect")
				s.Result, s.Err = nil, fmt.Errorf("invoked effect panicked: %v", r)
			}
		}()
		s.Result, s.Err = start.Invoke.Src(a.base, start.Context, start.Trigger)
	}()
	a.Dispatch(a.base, Event{Type: settleEvent, Data: s})
}
