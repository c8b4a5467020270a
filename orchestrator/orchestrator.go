// Package orchestrator routes messages between the portal's machines. The Bus
// is the only structure shared across machines: a write-once-per-id registry
// of running actors plus send and snapshot primitives. Machines receive the
// Bus by constructor injection; there is no package-level singleton, so tests
// build isolated instances.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/statechart"
)

// ActorRef is the narrow view of a running machine the bus needs: identity,
// event delivery and read-only snapshots. *statechart.Actor[C] satisfies it
// for any context type.
type ActorRef interface {
	ID() string
	Dispatch(ctx context.Context, e statechart.Event) <-chan struct{}
	Snapshot() statechart.Snapshot
}

// Bus is the process-wide machine registry and router. Registration happens
// once at startup; after that the registry is read-only.
type Bus struct {
	defaultTarget string
	machines      map[string]ActorRef
	log           zerolog.Logger
}

// New creates a bus whose Send routes to defaultTarget (conventionally the UI
// machine).
func New(defaultTarget string, log zerolog.Logger) *Bus {
	return &Bus{
		defaultTarget: defaultTarget,
		machines:      map[string]ActorRef{},
		log:           log.With().Str("component", "bus").Logger(),
	}
}

// RegisterMachine binds an identifier to a running actor. Binding the same id
// twice is a fatal configuration error, not a recoverable runtime condition.
func (b *Bus) RegisterMachine(id string, ref ActorRef) {
	if id == "" {
		panic("orchestrator: machine id is required")
	}
	if _, bound := b.machines[id]; bound {
		panic(fmt.Sprintf("orchestrator: machine %q already registered", id))
	}
	b.machines[id] = ref
}

// Send delivers an event to the default machine. Used for app-wide signals
// such as LOGOUT, NAVIGATE and snackbar traffic.
func (b *Bus) Send(ctx context.Context, e statechart.Event) <-chan struct{} {
	return b.SendToMachine(ctx, b.defaultTarget, e)
}

// SendToMachine delivers an event to the machine bound to id. The target
// processes it as a new, independent turn of its own queue; delivery never
// re-enters the sender. An unregistered target is logged and dropped.
func (b *Bus) SendToMachine(ctx context.Context, id string, e statechart.Event) <-chan struct{} {
	ref, ok := b.machines[id]
	if !ok {
		b.log.Error().Str("target", id).Str("event", e.Type).Msg("send to unregistered machine")
		return closedChannel
	}
	b.log.Debug().Str("target", id).Str("event", e.Type).Msg("routed event")
	return ref.Dispatch(ctx, e)
}

// GetSnapshot returns a read-only copy of a machine's state value and
// context. Snapshot targets are wired at startup, so an unknown id is a
// programmer error.
func (b *Bus) GetSnapshot(id string) statechart.Snapshot {
	ref, ok := b.machines[id]
	if !ok {
		panic(fmt.Sprintf("orchestrator: snapshot of unregistered machine %q", id))
	}
	return ref.Snapshot()
}

// Machines lists the registered machine ids.
func (b *Bus) Machines() []string {
	ids := make([]string, 0, len(b.machines))
	for id := range b.machines {
		ids = append(ids, id)
	}
	return ids
}

var closedChannel = func() chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}()
