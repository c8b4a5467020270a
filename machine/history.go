package machine

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// HistoryContext caches one patient's medical history. LoadedFor records
// which patient the cache belongs to so repeat loads can be skipped.
type HistoryContext struct {
	AccessToken string

	Entries   []service.MedicalHistory
	LoadedFor string
	// pending is the patient id of an in-flight load.
	Pending string

	// Removed keeps the optimistically deleted entry so a failed delete can
	// put it back.
	Removed    service.MedicalHistory
	HasRemoved bool
	Error      string
}

func (c HistoryContext) Clone() HistoryContext {
	c.Entries = slices.Clone(c.Entries)
	return c
}

type historyBuilder struct {
	bus *orchestrator.Bus
	svc service.Histories
	log zerolog.Logger
}

// NewHistory builds the medical-history machine actor.
func NewHistory(bus *orchestrator.Bus, svc service.Histories, log zerolog.Logger) *statechart.Actor[HistoryContext] {
	b := &historyBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *historyBuilder) machine() *statechart.Machine[HistoryContext] {
	return &statechart.Machine[HistoryContext]{
		ID:             IDHistory,
		Events:         historyEvents,
		InitialContext: func() HistoryContext { return HistoryContext{} },
		Regions: []statechart.Region[HistoryContext]{{
			Name:    "history",
			Initial: "idle",
			States: map[string]*statechart.State[HistoryContext]{
				"idle": {
					On: map[string][]statechart.Transition[HistoryContext]{
						EvSetAuth: {{Assign: []statechart.Reducer[HistoryContext]{b.setAuth}}},
						EvLoadPatientMedicalHistory: {{
							Target: "loadingMedicalHistory",
							Guard:  b.needsLoad,
							Assign: []statechart.Reducer[HistoryContext]{b.markPending},
						}},
						EvAddHistoryEntryForTurn: {{
							Target: "addingMedicalHistoryForTurn",
							Guard:  b.hasToken,
						}},
						EvUpdateHistoryEntry: {{
							Target: "updatingMedicalHistory",
							Guard:  b.hasToken,
						}},
						EvDeleteHistoryEntry: {{
							Target: "deletingMedicalHistory",
							Guard:  b.canDelete,
							Assign: []statechart.Reducer[HistoryContext]{b.removeOptimistically},
						}},
					},
				},
				"loadingMedicalHistory": {
					Invoke: &statechart.Invoke[HistoryContext]{
						Src: b.load,
						OnDone: []statechart.Transition[HistoryContext]{
							{Target: "idle", Assign: []statechart.Reducer[HistoryContext]{b.storeEntries}},
						},
						OnError: []statechart.Transition[HistoryContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[HistoryContext]{b.storeError},
								Effects: []statechart.Effect[HistoryContext]{snackFailure[HistoryContext](b.bus)},
							},
						},
					},
				},
				"addingMedicalHistoryForTurn": {
					Invoke: &statechart.Invoke[HistoryContext]{
						Src: b.addForTurn,
						OnDone: []statechart.Transition[HistoryContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[HistoryContext]{b.appendEntry},
								// Every machine that renders turn-derived state
								// converges on the new entry.
								Effects: []statechart.Effect[HistoryContext]{
									sendTo[HistoryContext](b.bus, IDTurn, EvReloadTurns, nil),
									sendTo[HistoryContext](b.bus, IDData, EvLoadData, nil),
									sendTo[HistoryContext](b.bus, IDDoctor, EvRefreshPatients, nil),
									snack[HistoryContext](b.bus, "Historia clínica agregada", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[HistoryContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[HistoryContext]{b.storeError},
								Effects: []statechart.Effect[HistoryContext]{snackFailure[HistoryContext](b.bus)},
							},
						},
					},
				},
				"updatingMedicalHistory": {
					Invoke: &statechart.Invoke[HistoryContext]{
						Src: b.update,
						OnDone: []statechart.Transition[HistoryContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[HistoryContext]{b.replaceEntry},
								Effects: []statechart.Effect[HistoryContext]{
									snack[HistoryContext](b.bus, "Historia clínica actualizada", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[HistoryContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[HistoryContext]{b.storeError},
								Effects: []statechart.Effect[HistoryContext]{snackFailure[HistoryContext](b.bus)},
							},
						},
					},
				},
				"deletingMedicalHistory": {
					Invoke: &statechart.Invoke[HistoryContext]{
						Src: b.remove,
						OnDone: []statechart.Transition[HistoryContext]{
							{Target: "idle", Assign: []statechart.Reducer[HistoryContext]{b.forgetRemoved}},
						},
						OnError: []statechart.Transition[HistoryContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[HistoryContext]{b.restoreRemoved},
								Effects: []statechart.Effect[HistoryContext]{snackFailure[HistoryContext](b.bus)},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *historyBuilder) setAuth(c HistoryContext, e statechart.Event) HistoryContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
	}
	return c
}

func (b *historyBuilder) hasToken(c HistoryContext, _ statechart.Event) bool {
	return c.AccessToken != ""
}

// needsLoad skips the backend when the cache already holds the requested
// patient, unless the request forces a reload.
func (b *historyBuilder) needsLoad(c HistoryContext, e statechart.Event) bool {
	p, ok := e.Data.(LoadHistoryPayload)
	if !ok || c.AccessToken == "" {
		return false
	}
	return p.Force || p.PatientID != c.LoadedFor || len(c.Entries) == 0
}

func (b *historyBuilder) canDelete(c HistoryContext, e statechart.Event) bool {
	p, ok := e.Data.(DeleteHistoryPayload)
	if !ok || c.AccessToken == "" {
		return false
	}
	return slices.ContainsFunc(c.Entries, func(entry service.MedicalHistory) bool {
		return entry.ID == p.EntryID
	})
}

func (b *historyBuilder) markPending(c HistoryContext, e statechart.Event) HistoryContext {
	if p, ok := e.Data.(LoadHistoryPayload); ok {
		c.Pending = p.PatientID
	}
	return c
}

func (b *historyBuilder) load(ctx context.Context, c HistoryContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(LoadHistoryPayload)
	if !ok {
		return nil, errBadPayload
	}
	entries, err := b.svc.ForPatient(ctx, c.AccessToken, p.PatientID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *historyBuilder) addForTurn(ctx context.Context, c HistoryContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(HistoryEntryPayload)
	if !ok {
		return nil, errBadPayload
	}
	entry, err := b.svc.AddForTurn(ctx, c.AccessToken, p.Entry)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *historyBuilder) update(ctx context.Context, c HistoryContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(HistoryEntryPayload)
	if !ok {
		return nil, errBadPayload
	}
	entry, err := b.svc.Update(ctx, c.AccessToken, p.Entry)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *historyBuilder) remove(ctx context.Context, c HistoryContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(DeleteHistoryPayload)
	if !ok {
		return nil, errBadPayload
	}
	if err := b.svc.Delete(ctx, c.AccessToken, p.EntryID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *historyBuilder) storeEntries(c HistoryContext, e statechart.Event) HistoryContext {
	if entries, ok := e.Data.([]service.MedicalHistory); ok {
		c.Entries = entries
		c.LoadedFor = c.Pending
		c.Pending = ""
		c.Error = ""
	}
	return c
}

func (b *historyBuilder) appendEntry(c HistoryContext, e statechart.Event) HistoryContext {
	entry, ok := e.Data.(service.MedicalHistory)
	if !ok {
		return c
	}
	if entry.PatientID == c.LoadedFor {
		c.Entries = append(c.Entries, entry)
	}
	c.Error = ""
	return c
}

func (b *historyBuilder) replaceEntry(c HistoryContext, e statechart.Event) HistoryContext {
	entry, ok := e.Data.(service.MedicalHistory)
	if !ok {
		return c
	}
	for i := range c.Entries {
		if c.Entries[i].ID == entry.ID {
			c.Entries[i] = entry
		}
	}
	c.Error = ""
	return c
}

// removeOptimistically drops the entry before the backend confirms; a failed
// delete restores it.
func (b *historyBuilder) removeOptimistically(c HistoryContext, e statechart.Event) HistoryContext {
	p, ok := e.Data.(DeleteHistoryPayload)
	if !ok {
		return c
	}
	for i := range c.Entries {
		if c.Entries[i].ID == p.EntryID {
			c.Removed = c.Entries[i]
			c.HasRemoved = true
			c.Entries = slices.Delete(slices.Clone(c.Entries), i, i+1)
			break
		}
	}
	return c
}

func (b *historyBuilder) forgetRemoved(c HistoryContext, _ statechart.Event) HistoryContext {
	c.Removed = service.MedicalHistory{}
	c.HasRemoved = false
	c.Error = ""
	return c
}

func (b *historyBuilder) restoreRemoved(c HistoryContext, _ statechart.Event) HistoryContext {
	if c.HasRemoved {
		c.Entries = append(c.Entries, c.Removed)
		c.Removed = service.MedicalHistory{}
		c.HasRemoved = false
	}
	return c
}

func (b *historyBuilder) storeError(c HistoryContext, e statechart.Event) HistoryContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}
