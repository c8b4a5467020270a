// Package statechart implements the portal's state machine engine: declarative
// machine definitions (flat states grouped into parallel regions, guarded
// transition tables, context-merge reducers, invoked async effects) and an
// actor runtime that processes one event at a time per machine.
//
// A machine definition is data plus pure functions. Guards never mutate,
// reducers return a new context value, and side effects run only after the
// state and context of the owning machine have been committed. Asynchronous
// work re-enters the machine as a synthetic done/error event, so the engine
// itself never blocks.
package statechart

import (
	"context"
	"errors"
	"fmt"
)

// Reserved event types synthesized by the runtime. Domain code never
// dispatches these directly; they appear as the triggering event inside
// OnDone/OnError transitions.
const (
	// EventDone carries an invoked effect's resolved value in Event.Data.
	EventDone = "done.invoke"
	// EventError carries an invoked effect's error in Event.Data.
	EventError = "error.invoke"

	// initEvent triggers initial-state entry when an actor starts.
	initEvent = "statechart.init"
	// settleEvent is the queued form of an effect settlement; the drain loop
	// unwraps it into EventDone/EventError after staleness checks.
	settleEvent = "statechart.settle"
)

// Event is a discriminated message consumed exactly once by one machine.
// Events are immutable after dispatch; Data carries the typed payload.
type Event struct {
	Type string
	ID   string
	Data any
}

// Cloneable is the constraint on machine contexts. Clone must return a deep
// enough copy that the caller can never mutate the machine's live state
// through it (slices and maps copied, nested records duplicated).
type Cloneable[C any] interface {
	Clone() C
}

// Guard is a pure predicate over (context, event) deciding transition
// eligibility. Guards must not depend on wall-clock time or external mutable
// state.
type Guard[C any] func(c C, e Event) bool

// Reducer merges context: it receives the current context value and returns
// the next one. Reducers on a single transition compose left to right, so a
// later write to a field overrides an earlier one.
type Reducer[C any] func(c C, e Event) C

// Effect is a post-commit side effect. It observes a defensive copy of the
// committed context and must not attempt to change machine state except by
// dispatching new events (typically through the orchestrator).
type Effect[C any] func(c C, e Event)

// InvokeFunc is the asynchronous operation bound to an invoking state. It
// receives the context value captured at state entry and the triggering
// event, and settles with a result or an error.
type InvokeFunc[C any] func(ctx context.Context, c C, e Event) (any, error)

// Transition is one guarded candidate for an event. Candidates are evaluated
// in declaration order; the first whose guard passes (a nil guard always
// passes) is taken. An empty Target keeps the current state and skips
// exit/entry processing.
type Transition[C Cloneable[C]] struct {
	Target  string
	Guard   Guard[C]
	Assign  []Reducer[C]
	Effects []Effect[C]
}

// Invoke binds an async operation to a state's lifetime. Entering the state
// starts Src; the settlement selects among OnDone or OnError candidates.
// Exiting the state before settlement discards the eventual result.
type Invoke[C Cloneable[C]] struct {
	Src     InvokeFunc[C]
	OnDone  []Transition[C]
	OnError []Transition[C]
}

// State is one vertex of a region. Entry and Exit reducers run as part of the
// transition that enters or leaves the state; EntryFx and ExitFx run after
// commit. Always transitions are eventless and re-evaluated whenever the
// state is (re)entered or updated in place.
type State[C Cloneable[C]] struct {
	Entry   []Reducer[C]
	EntryFx []Effect[C]
	Exit    []Reducer[C]
	ExitFx  []Effect[C]
	Invoke  *Invoke[C]
	Always  []Transition[C]
	On      map[string][]Transition[C]
}

// Region is an independently evolving branch of a machine. Single-region
// machines have exactly one; parallel machines list several, all sharing the
// machine's context.
type Region[C Cloneable[C]] struct {
	Name    string
	Initial string
	States  map[string]*State[C]
}

// Machine is a complete definition: identifier, closed event vocabulary,
// ordered regions and the context factory used at start and on reset.
type Machine[C Cloneable[C]] struct {
	ID             string
	Events         []string
	Regions        []Region[C]
	InitialContext func() C
}

// StateValue maps region name to that region's current leaf state.
type StateValue map[string]string

// Clone returns an independent copy of the state value.
func (sv StateValue) Clone() StateValue {
	if sv == nil {
		return nil
	}
	next := make(StateValue, len(sv))
	for region, state := range sv {
		next[region] = state
	}
	return next
}

// Snapshot is a read-only projection of an actor at a point in time. Context
// holds a defensive copy of the machine's context record.
type Snapshot struct {
	MachineID  string
	StateValue StateValue
	Context    any
}

// SnapshotContext extracts a typed context from a snapshot.
func SnapshotContext[C any](s Snapshot) (C, bool) {
	c, ok := s.Context.(C)
	return c, ok
}

// maxAlwaysDepth bounds eventless transition chains. Exceeding it means the
// definition loops through Always transitions and is a configuration error.
const maxAlwaysDepth = 16

// Validation errors.
var (
	ErrNoRegions      = errors.New("machine has no regions")
	ErrNoInitial      = errors.New("region has no initial state")
	ErrUnknownTarget  = errors.New("transition targets unknown state")
	ErrUnknownEvent   = errors.New("transition on undeclared event type")
	ErrChainedInvoke  = errors.New("invoke settlement targets an invoking state")
	ErrEmptyInternal  = errors.New("internal transition has no assign or effect")
	ErrAlwaysCycle    = errors.New("unconditional always transitions form a cycle")
	ErrMissingContext = errors.New("machine has no initial context factory")
)

// Validate checks the structural invariants of a definition: every region has
// a known initial state, every target exists, every event type belongs to the
// declared vocabulary, invoking states settle into non-invoking states, and
// unconditional eventless transitions cannot loop. A machine that fails
// validation is a programmer error and must not be started.
func (m *Machine[C]) Validate() error {
	if m.ID == "" {
		return errors.New("machine id is required")
	}
	if m.InitialContext == nil {
		return fmt.Errorf("%s: %w", m.ID, ErrMissingContext)
	}
	if len(m.Regions) == 0 {
		return fmt.Errorf("%s: %w", m.ID, ErrNoRegions)
	}
	vocabulary := make(map[string]struct{}, len(m.Events))
	for _, name := range m.Events {
		vocabulary[name] = struct{}{}
	}
	seen := map[string]struct{}{}
	for _, region := range m.Regions {
		if region.Name == "" {
			return fmt.Errorf("%s: region name is required", m.ID)
		}
		if _, dup := seen[region.Name]; dup {
			return fmt.Errorf("%s: duplicate region %q", m.ID, region.Name)
		}
		seen[region.Name] = struct{}{}
		if err := m.validateRegion(region, vocabulary); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine[C]) validateRegion(region Region[C], vocabulary map[string]struct{}) error {
	if _, ok := region.States[region.Initial]; !ok {
		return fmt.Errorf("%s/%s %q: %w", m.ID, region.Name, region.Initial, ErrNoInitial)
	}
	for name, state := range region.States {
		for eventType, candidates := range state.On {
			if _, ok := vocabulary[eventType]; !ok {
				return fmt.Errorf("%s/%s/%s on %q: %w", m.ID, region.Name, name, eventType, ErrUnknownEvent)
			}
			if err := m.validateCandidates(region, name, candidates, false); err != nil {
				return err
			}
		}
		for _, t := range state.Always {
			if t.Target == "" {
				return fmt.Errorf("%s/%s/%s: always transition requires a target", m.ID, region.Name, name)
			}
		}
		if err := m.validateCandidates(region, name, state.Always, false); err != nil {
			return err
		}
		if state.Invoke != nil {
			if state.Invoke.Src == nil {
				return fmt.Errorf("%s/%s/%s: invoke has no source", m.ID, region.Name, name)
			}
			if err := m.validateCandidates(region, name, state.Invoke.OnDone, true); err != nil {
				return err
			}
			if err := m.validateCandidates(region, name, state.Invoke.OnError, true); err != nil {
				return err
			}
		}
	}
	return m.validateAlwaysChains(region)
}

func (m *Machine[C]) validateCandidates(region Region[C], source string, candidates []Transition[C], settlement bool) error {
	for _, t := range candidates {
		if t.Target == "" {
			if len(t.Assign) == 0 && len(t.Effects) == 0 {
				return fmt.Errorf("%s/%s/%s: %w", m.ID, region.Name, source, ErrEmptyInternal)
			}
			continue
		}
		target, ok := region.States[t.Target]
		if !ok {
			return fmt.Errorf("%s/%s/%s -> %q: %w", m.ID, region.Name, source, t.Target, ErrUnknownTarget)
		}
		if settlement && target.Invoke != nil {
			return fmt.Errorf("%s/%s/%s -> %q: %w", m.ID, region.Name, source, t.Target, ErrChainedInvoke)
		}
	}
	return nil
}

// validateAlwaysChains walks unconditional Always edges; a cycle would make
// the actor spin at runtime.
func (m *Machine[C]) validateAlwaysChains(region Region[C]) error {
	for name := range region.States {
		current := name
		for depth := 0; ; depth++ {
			if depth > maxAlwaysDepth {
				return fmt.Errorf("%s/%s starting at %q: %w", m.ID, region.Name, name, ErrAlwaysCycle)
			}
			state := region.States[current]
			next := ""
			for _, t := range state.Always {
				if t.Guard == nil && t.Target != "" {
					next = t.Target
					break
				}
			}
			if next == "" {
				break
			}
			current = next
		}
	}
	return nil
}

// region lookup helper; regions are few, a linear scan keeps the definition a
// plain literal.
func (m *Machine[C]) region(name string) *Region[C] {
	for i := range m.Regions {
		if m.Regions[i].Name == name {
			return &m.Regions[i]
		}
	}
	return nil
}
