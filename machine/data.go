package machine

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// DataContext caches the portal dataset shared by the turn and doctor
// machines.
type DataContext struct {
	AccessToken string
	UserID      string
	Role        service.Role

	Turns        []service.Turn
	Patients     []service.Patient
	Availability []service.DayAvailability
	Error        string
}

func (c DataContext) Clone() DataContext {
	c.Turns = slices.Clone(c.Turns)
	c.Patients = slices.Clone(c.Patients)
	c.Availability = slices.Clone(c.Availability)
	return c
}

type dataBuilder struct {
	bus *orchestrator.Bus
	svc service.Data
	log zerolog.Logger
}

// NewData builds the data machine actor. It loads the role-scoped dataset on
// demand and fans the result out to the machines that render it.
func NewData(bus *orchestrator.Bus, svc service.Data, log zerolog.Logger) *statechart.Actor[DataContext] {
	b := &dataBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *dataBuilder) machine() *statechart.Machine[DataContext] {
	return &statechart.Machine[DataContext]{
		ID:             IDData,
		Events:         dataEvents,
		InitialContext: func() DataContext { return DataContext{} },
		Regions: []statechart.Region[DataContext]{{
			Name:    "data",
			Initial: "idle",
			States: map[string]*statechart.State[DataContext]{
				"idle": {
					On: map[string][]statechart.Transition[DataContext]{
						EvSetAuth:  {{Assign: []statechart.Reducer[DataContext]{b.setAuth}}},
						EvLoadData: {{Target: "loadingData", Guard: b.hasSession}},
					},
				},
				"loadingData": {
					Invoke: &statechart.Invoke[DataContext]{
						Src: b.load,
						OnDone: []statechart.Transition[DataContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[DataContext]{b.storeBundle},
								Effects: []statechart.Effect[DataContext]{b.announceLoaded},
							},
						},
						OnError: []statechart.Transition[DataContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[DataContext]{b.storeError},
								Effects: []statechart.Effect[DataContext]{snackFailure[DataContext](b.bus)},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *dataBuilder) setAuth(c DataContext, e statechart.Event) DataContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
		c.UserID = p.UserID
		c.Role = p.Role
	}
	return c
}

func (b *dataBuilder) hasSession(c DataContext, _ statechart.Event) bool {
	return c.AccessToken != "" && c.UserID != ""
}

func (b *dataBuilder) load(ctx context.Context, c DataContext, _ statechart.Event) (any, error) {
	bundle, err := b.svc.Load(ctx, c.AccessToken, c.UserID, c.Role)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (b *dataBuilder) storeBundle(c DataContext, e statechart.Event) DataContext {
	bundle, ok := e.Data.(service.DataBundle)
	if !ok {
		return c
	}
	c.Turns = bundle.Turns
	c.Patients = bundle.Patients
	c.Availability = bundle.Availability
	c.Error = ""
	return c
}

func (b *dataBuilder) storeError(c DataContext, e statechart.Event) DataContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

// announceLoaded tells the rendering machines that a fresh dataset is
// available in this machine's snapshot.
func (b *dataBuilder) announceLoaded(DataContext, statechart.Event) {
	ctx := context.Background()
	b.bus.SendToMachine(ctx, IDTurn, statechart.Event{Type: EvDataLoaded})
	b.bus.SendToMachine(ctx, IDDoctor, statechart.Event{Type: EvDataLoaded})
}
