package statechart

// settlement is the queued payload of an invoked effect's completion. The
// drain loop checks Gen against the region's live generation before the
// payload is allowed anywhere near the engine.
type settlement struct {
	Region string
	State  string
	Gen    uint64
	Result any
	Err    error
}

// effectBinding is a side effect scheduled by a step. Effects are bound to
// the triggering event here and to the committed context by the actor, so
// they always observe the machine's fully updated state.
type effectBinding[C Cloneable[C]] struct {
	fn Effect[C]
	e  Event
}

// invokeStart describes an asynchronous operation to launch after commit.
// Context is the value captured at state entry, serving as the effect input.
type invokeStart[C Cloneable[C]] struct {
	Region  string
	State   string
	Invoke  *Invoke[C]
	Context C
	Trigger Event
}

// stepResult is the complete outcome of processing one event: next state
// value and context, side effects to run, invocations to start and regions
// whose pending invocation became stale.
type stepResult[C Cloneable[C]] struct {
	Value   StateValue
	Context C
	Effects []effectBinding[C]
	Starts  []invokeStart[C]
	Cancels []string
	Taken   bool
}

// step resolves an external event against every region of the machine. Each
// region consults only its active state's transition table; a region with no
// matching candidate is left untouched. Running step twice over the same
// inputs yields identical results.
func step[C Cloneable[C]](m *Machine[C], sv StateValue, c C, e Event) stepResult[C] {
	res := stepResult[C]{Value: sv.Clone(), Context: c}
	for i := range m.Regions {
		region := &m.Regions[i]
		current := res.Value[region.Name]
		state := region.States[current]
		if state == nil {
			continue
		}
		if t := resolve(state.On[e.Type], res.Context, e); t != nil {
			applyTransition(region, current, t, e, &res)
		}
	}
	return res
}

// stepSettlement resolves an invoked effect's completion against the owning
// region only. The event passed to guards and reducers is the synthetic
// done/error event carrying the result or the failure.
func stepSettlement[C Cloneable[C]](m *Machine[C], sv StateValue, c C, s settlement) stepResult[C] {
	res := stepResult[C]{Value: sv.Clone(), Context: c}
	region := m.region(s.Region)
	if region == nil {
		return res
	}
	current := res.Value[region.Name]
	state := region.States[current]
	if state == nil || state.Invoke == nil || current != s.State {
		return res
	}
	e := Event{Type: EventDone, Data: s.Result}
	candidates := state.Invoke.OnDone
	if s.Err != nil {
		e = Event{Type: EventError, Data: s.Err}
		candidates = state.Invoke.OnError
	}
	if t := resolve(candidates, res.Context, e); t != nil {
		applyTransition(region, current, t, e, &res)
	}
	return res
}

// stepInitial enters every region's initial state. Used once at actor start
// and again on context reset.
func stepInitial[C Cloneable[C]](m *Machine[C], c C) stepResult[C] {
	res := stepResult[C]{Value: StateValue{}, Context: c}
	e := Event{Type: initEvent}
	for i := range m.Regions {
		region := &m.Regions[i]
		res.Value[region.Name] = region.Initial
		enterState(region, region.Initial, e, &res)
		runAlways(region, e, &res)
	}
	return res
}

// resolve picks the first candidate whose guard passes; a nil guard is an
// unconditional match.
func resolve[C Cloneable[C]](candidates []Transition[C], c C, e Event) *Transition[C] {
	for i := range candidates {
		t := &candidates[i]
		if t.Guard == nil || t.Guard(c, e) {
			return t
		}
	}
	return nil
}

// applyTransition performs one taken transition in one region: exit reducers
// of the old state (external transitions only), the transition's assigns in
// declaration order, entry reducers of the new state, then the eventless
// follow-ups of wherever the region landed. Side effects are scheduled, not
// run.
func applyTransition[C Cloneable[C]](region *Region[C], current string, t *Transition[C], e Event, res *stepResult[C]) {
	res.Taken = true
	if t.Target == "" {
		for _, assign := range t.Assign {
			res.Context = assign(res.Context, e)
		}
		for _, fx := range t.Effects {
			res.Effects = append(res.Effects, effectBinding[C]{fn: fx, e: e})
		}
		runAlways(region, e, res)
		return
	}
	exitState(region, current, e, res)
	for _, assign := range t.Assign {
		res.Context = assign(res.Context, e)
	}
	for _, fx := range t.Effects {
		res.Effects = append(res.Effects, effectBinding[C]{fn: fx, e: e})
	}
	res.Value[region.Name] = t.Target
	enterState(region, t.Target, e, res)
	runAlways(region, e, res)
}

func exitState[C Cloneable[C]](region *Region[C], name string, e Event, res *stepResult[C]) {
	state := region.States[name]
	if state == nil {
		return
	}
	for _, exit := range state.Exit {
		res.Context = exit(res.Context, e)
	}
	for _, fx := range state.ExitFx {
		res.Effects = append(res.Effects, effectBinding[C]{fn: fx, e: e})
	}
	if state.Invoke != nil {
		res.Cancels = append(res.Cancels, region.Name)
	}
}

func enterState[C Cloneable[C]](region *Region[C], name string, e Event, res *stepResult[C]) {
	state := region.States[name]
	if state == nil {
		return
	}
	for _, entry := range state.Entry {
		res.Context = entry(res.Context, e)
	}
	for _, fx := range state.EntryFx {
		res.Effects = append(res.Effects, effectBinding[C]{fn: fx, e: e})
	}
	if state.Invoke != nil {
		res.Starts = append(res.Starts, invokeStart[C]{
			Region:  region.Name,
			State:   name,
			Invoke:  state.Invoke,
			Context: res.Context.Clone(),
			Trigger: e,
		})
	}
}

// runAlways chains eventless transitions from the region's current state.
// Validation bounds unconditional chains; guarded loops that refuse to settle
// trip the depth limit and panic as a configuration error.
func runAlways[C Cloneable[C]](region *Region[C], e Event, res *stepResult[C]) {
	for depth := 0; ; depth++ {
		if depth > maxAlwaysDepth {
			panic(ErrAlwaysCycle)
		}
		current := res.Value[region.Name]
		state := region.States[current]
		if state == nil || len(state.Always) == 0 {
			return
		}
		t := resolve(state.Always, res.Context, e)
		if t == nil {
			return
		}
		if t.Target == "" {
			// An internal eventless transition would re-fire forever.
			panic(ErrAlwaysCycle)
		}
		exitState(region, current, e, res)
		for _, assign := range t.Assign {
			res.Context = assign(res.Context, e)
		}
		for _, fx := range t.Effects {
			res.Effects = append(res.Effects, effectBinding[C]{fn: fx, e: e})
		}
		res.Value[region.Name] = t.Target
		enterState(region, t.Target, e, res)
	}
}
