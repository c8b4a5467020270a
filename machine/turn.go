package machine

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// TurnContext tracks the appointments visible to the signed-in user plus the
// current selection.
type TurnContext struct {
	AccessToken string
	UserID      string
	Role        service.Role

	Turns        []service.Turn
	Selected     service.Turn
	HasSelection bool
	Error        string
}

func (c TurnContext) Clone() TurnContext {
	c.Turns = slices.Clone(c.Turns)
	return c
}

type turnBuilder struct {
	bus *orchestrator.Bus
	svc service.Turns
	log zerolog.Logger
}

// NewTurn builds the turn machine actor covering reservation, cancellation
// and the doctor-side approve/reject flow.
func NewTurn(bus *orchestrator.Bus, svc service.Turns, log zerolog.Logger) *statechart.Actor[TurnContext] {
	b := &turnBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *turnBuilder) machine() *statechart.Machine[TurnContext] {
	return &statechart.Machine[TurnContext]{
		ID:             IDTurn,
		Events:         turnEvents,
		InitialContext: func() TurnContext { return TurnContext{} },
		Regions: []statechart.Region[TurnContext]{{
			Name:    "turn",
			Initial: "idle",
			States: map[string]*statechart.State[TurnContext]{
				"idle": {
					On: map[string][]statechart.Transition[TurnContext]{
						EvSetAuth:        {{Assign: []statechart.Reducer[TurnContext]{b.setAuth}}},
						EvDataLoaded:     {{Assign: []statechart.Reducer[TurnContext]{b.pullFromData}}},
						EvSelectTurn:     {{Assign: []statechart.Reducer[TurnContext]{b.selectTurn}}},
						EvUpdateTurnFile: {{Assign: []statechart.Reducer[TurnContext]{b.patchFile}}},
						EvRemoveTurnFile: {{Assign: []statechart.Reducer[TurnContext]{b.patchFile}}},
						EvReloadTurns:    {{Target: "loadingTurns", Guard: b.hasSession}},
						EvReserveTurn:    {{Target: "reserving", Guard: b.hasSession}},
						EvCancelTurn:     {{Target: "cancelling", Guard: b.hasSession}},
						EvApproveTurn:    {{Target: "approving", Guard: b.isDoctor}},
						EvRejectTurn:     {{Target: "rejecting", Guard: b.isDoctor}},
					},
				},
				"loadingTurns": {
					Invoke: &statechart.Invoke[TurnContext]{
						Src: b.list,
						OnDone: []statechart.Transition[TurnContext]{
							{Target: "idle", Assign: []statechart.Reducer[TurnContext]{b.storeTurns}},
						},
						OnError: []statechart.Transition[TurnContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[TurnContext]{b.storeError},
								Effects: []statechart.Effect[TurnContext]{snackFailure[TurnContext](b.bus)},
							},
						},
					},
				},
				"reserving": {
					Invoke: &statechart.Invoke[TurnContext]{
						Src: b.reserve,
						OnDone: []statechart.Transition[TurnContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[TurnContext]{b.appendReserved},
								Effects: []statechart.Effect[TurnContext]{
									b.refreshData,
									snack[TurnContext](b.bus, "Turno reservado correctamente", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[TurnContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[TurnContext]{b.storeError},
								Effects: []statechart.Effect[TurnContext]{snackFailure[TurnContext](b.bus)},
							},
						},
					},
				},
				"cancelling": {
					Invoke: &statechart.Invoke[TurnContext]{
						Src: b.action(service.TurnCancelled),
						OnDone: []statechart.Transition[TurnContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[TurnContext]{b.applyStatus},
								Effects: []statechart.Effect[TurnContext]{
									b.refreshData,
									snack[TurnContext](b.bus, "Turno cancelado", SeverityWarning),
								},
							},
						},
						OnError: []statechart.Transition[TurnContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[TurnContext]{b.storeError},
								Effects: []statechart.Effect[TurnContext]{snackFailure[TurnContext](b.bus)},
							},
						},
					},
				},
				"approving": {
					Invoke: &statechart.Invoke[TurnContext]{
						Src: b.action(service.TurnApproved),
						OnDone: []statechart.Transition[TurnContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[TurnContext]{b.applyStatus},
								Effects: []statechart.Effect[TurnContext]{
									b.refreshData,
									snack[TurnContext](b.bus, "Turno aprobado", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[TurnContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[TurnContext]{b.storeError},
								Effects: []statechart.Effect[TurnContext]{snackFailure[TurnContext](b.bus)},
							},
						},
					},
				},
				"rejecting": {
					Invoke: &statechart.Invoke[TurnContext]{
						Src: b.action(service.TurnRejected),
						OnDone: []statechart.Transition[TurnContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[TurnContext]{b.applyStatus},
								Effects: []statechart.Effect[TurnContext]{
									b.refreshData,
									snack[TurnContext](b.bus, "Turno rechazado", SeverityError),
								},
							},
						},
						OnError: []statechart.Transition[TurnContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[TurnContext]{b.storeError},
								Effects: []statechart.Effect[TurnContext]{snackFailure[TurnContext](b.bus)},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *turnBuilder) setAuth(c TurnContext, e statechart.Event) TurnContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
		c.UserID = p.UserID
		c.Role = p.Role
	}
	return c
}

func (b *turnBuilder) hasSession(c TurnContext, _ statechart.Event) bool {
	return c.AccessToken != "" && c.UserID != ""
}

func (b *turnBuilder) isDoctor(c TurnContext, _ statechart.Event) bool {
	return b.hasSession(c, statechart.Event{}) && c.Role == service.RoleDoctor
}

// pullFromData copies the turn list out of the data machine's snapshot
// instead of hitting the backend again.
func (b *turnBuilder) pullFromData(c TurnContext, _ statechart.Event) TurnContext {
	snap := b.bus.GetSnapshot(IDData)
	data, ok := statechart.SnapshotContext[DataContext](snap)
	if !ok {
		b.log.Warn().Str("machine", snap.MachineID).Msg("unreadable data snapshot")
		return c
	}
	c.Turns = data.Turns
	return c
}

func (b *turnBuilder) selectTurn(c TurnContext, e statechart.Event) TurnContext {
	if p, ok := e.Data.(SelectTurnPayload); ok {
		c.Selected = p.Turn
		c.HasSelection = true
	}
	return c
}

func (b *turnBuilder) patchFile(c TurnContext, e statechart.Event) TurnContext {
	p, ok := e.Data.(TurnFilePayload)
	if !ok {
		return c
	}
	for i := range c.Turns {
		if c.Turns[i].ID == p.TurnID {
			c.Turns[i].FileURL = p.URL
		}
	}
	if c.HasSelection && c.Selected.ID == p.TurnID {
		c.Selected.FileURL = p.URL
	}
	return c
}

func (b *turnBuilder) list(ctx context.Context, c TurnContext, _ statechart.Event) (any, error) {
	turns, err := b.svc.List(ctx, c.AccessToken, c.UserID, c.Role)
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (b *turnBuilder) reserve(ctx context.Context, c TurnContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(ReserveTurnPayload)
	if !ok {
		return nil, errBadPayload
	}
	turn := p.Turn
	turn.PatientID = c.UserID
	reserved, err := b.svc.Reserve(ctx, c.AccessToken, turn)
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// action returns an invoke source for cancel/approve/reject. The settled
// value is the turn id paired with its new status so the reducer can patch
// the cached list.
func (b *turnBuilder) action(status string) statechart.InvokeFunc[TurnContext] {
	return func(ctx context.Context, c TurnContext, e statechart.Event) (any, error) {
		p, ok := e.Data.(TurnActionPayload)
		if !ok {
			return nil, errBadPayload
		}
		var err error
		switch status {
		case service.TurnCancelled:
			err = b.svc.Cancel(ctx, c.AccessToken, p.TurnID)
		case service.TurnApproved:
			err = b.svc.Approve(ctx, c.AccessToken, p.TurnID)
		case service.TurnRejected:
			err = b.svc.Reject(ctx, c.AccessToken, p.TurnID)
		}
		if err != nil {
			return nil, err
		}
		return turnStatusChange{TurnID: p.TurnID, Status: status}, nil
	}
}

type turnStatusChange struct {
	TurnID string
	Status string
}

func (b *turnBuilder) storeTurns(c TurnContext, e statechart.Event) TurnContext {
	if turns, ok := e.Data.([]service.Turn); ok {
		c.Turns = turns
		c.Error = ""
	}
	return c
}

func (b *turnBuilder) appendReserved(c TurnContext, e statechart.Event) TurnContext {
	if turn, ok := e.Data.(service.Turn); ok {
		c.Turns = append(c.Turns, turn)
		c.Error = ""
	}
	return c
}

func (b *turnBuilder) applyStatus(c TurnContext, e statechart.Event) TurnContext {
	change, ok := e.Data.(turnStatusChange)
	if !ok {
		return c
	}
	for i := range c.Turns {
		if c.Turns[i].ID == change.TurnID {
			c.Turns[i].Status = change.Status
		}
	}
	if c.HasSelection && c.Selected.ID == change.TurnID {
		c.Selected.Status = change.Status
	}
	c.Error = ""
	return c
}

func (b *turnBuilder) storeError(c TurnContext, e statechart.Event) TurnContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

// refreshData asks the data machine to reload so every consumer converges on
// the new backend state.
func (b *turnBuilder) refreshData(TurnContext, statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDData, statechart.Event{Type: EvLoadData})
}
