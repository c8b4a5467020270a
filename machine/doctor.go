package machine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// DoctorContext is the extended state of the doctor machine. Week is the
// availability edit buffer with localized day names; it is translated back to
// server form on save.
type DoctorContext struct {
	AccessToken string
	DoctorID    string
	Role        service.Role

	Patients     []service.Patient
	Selected     service.Patient
	HasSelection bool
	HistoryDraft string

	Week  []DaySlot
	Error string
}

func (c DoctorContext) Clone() DoctorContext {
	c.Patients = slices.Clone(c.Patients)
	c.Week = slices.Clone(c.Week)
	for i := range c.Week {
		c.Week[i].Slots = slices.Clone(c.Week[i].Slots)
	}
	return c
}

type doctorBuilder struct {
	bus       *orchestrator.Bus
	svc       service.Doctors
	histories service.Histories
	log       zerolog.Logger
}

// NewDoctor builds the doctor machine actor. Patient management and weekly
// availability run as independent regions so saving a history entry never
// blocks an availability edit.
func NewDoctor(bus *orchestrator.Bus, svc service.Doctors, histories service.Histories, log zerolog.Logger) *statechart.Actor[DoctorContext] {
	b := &doctorBuilder{bus: bus, svc: svc, histories: histories, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *doctorBuilder) machine() *statechart.Machine[DoctorContext] {
	return &statechart.Machine[DoctorContext]{
		ID:     IDDoctor,
		Events: doctorEvents,
		InitialContext: func() DoctorContext {
			return DoctorContext{Week: defaultWeek()}
		},
		Regions: []statechart.Region[DoctorContext]{
			{
				Name:    "patientManagement",
				Initial: "idle",
				States: map[string]*statechart.State[DoctorContext]{
					"idle": {
						On: map[string][]statechart.Transition[DoctorContext]{
							EvSetAuth:    {{Assign: []statechart.Reducer[DoctorContext]{b.setAuth}}},
							EvDataLoaded: {{Assign: []statechart.Reducer[DoctorContext]{b.pullFromData}}},
							EvSelectPatient: {{
								Assign:  []statechart.Reducer[DoctorContext]{b.selectPatient},
								Effects: []statechart.Effect[DoctorContext]{b.loadSelectedHistory},
							}},
							EvClearSelection:     {{Assign: []statechart.Reducer[DoctorContext]{b.clearSelection}}},
							EvUpdateHistoryDraft: {{Assign: []statechart.Reducer[DoctorContext]{b.updateDraft}}},
							EvSaveHistory:        {{Target: "savingHistory", Guard: b.canSaveHistory}},
							EvRefreshPatients:    {{Target: "refreshingPatients", Guard: b.isDoctor}},
						},
					},
					"savingHistory": {
						Invoke: &statechart.Invoke[DoctorContext]{
							Src: b.saveHistory,
							OnDone: []statechart.Transition[DoctorContext]{
								{
									Target: "idle",
									Assign: []statechart.Reducer[DoctorContext]{b.clearDraft},
									Effects: []statechart.Effect[DoctorContext]{
										b.reloadSelectedHistory,
										snack[DoctorContext](b.bus, "Historia clínica guardada", SeveritySuccess),
									},
								},
							},
							OnError: []statechart.Transition[DoctorContext]{
								{
									Target:  "idle",
									Assign:  []statechart.Reducer[DoctorContext]{b.storeError},
									Effects: []statechart.Effect[DoctorContext]{snackFailure[DoctorContext](b.bus)},
								},
							},
						},
					},
					"refreshingPatients": {
						Invoke: &statechart.Invoke[DoctorContext]{
							Src: b.fetchPatients,
							OnDone: []statechart.Transition[DoctorContext]{
								{Target: "idle", Assign: []statechart.Reducer[DoctorContext]{b.storePatients}},
							},
							OnError: []statechart.Transition[DoctorContext]{
								{
									Target:  "idle",
									Assign:  []statechart.Reducer[DoctorContext]{b.storeError},
									Effects: []statechart.Effect[DoctorContext]{snackFailure[DoctorContext](b.bus)},
								},
							},
						},
					},
				},
			},
			{
				Name:    "availability",
				Initial: "idle",
				States: map[string]*statechart.State[DoctorContext]{
					"idle": {
						On: map[string][]statechart.Transition[DoctorContext]{
							EvEditAvailability: {{Assign: []statechart.Reducer[DoctorContext]{b.editDay}}},
							EvSaveAvailability: {{Target: "savingAvailability", Guard: b.isDoctor}},
						},
					},
					"savingAvailability": {
						Invoke: &statechart.Invoke[DoctorContext]{
							Src: b.saveAvailability,
							OnDone: []statechart.Transition[DoctorContext]{
								{
									Target: "idle",
									Effects: []statechart.Effect[DoctorContext]{
										b.refreshData,
										snack[DoctorContext](b.bus, "Disponibilidad actualizada", SeveritySuccess),
									},
								},
							},
							OnError: []statechart.Transition[DoctorContext]{
								{
									Target:  "idle",
									Assign:  []statechart.Reducer[DoctorContext]{b.storeError},
									Effects: []statechart.Effect[DoctorContext]{snackFailure[DoctorContext](b.bus)},
								},
							},
						},
					},
				},
			},
		},
	}
}

func (b *doctorBuilder) setAuth(c DoctorContext, e statechart.Event) DoctorContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
		c.DoctorID = p.UserID
		c.Role = p.Role
	}
	return c
}

func (b *doctorBuilder) isDoctor(c DoctorContext, _ statechart.Event) bool {
	return c.AccessToken != "" && c.DoctorID != "" && c.Role == service.RoleDoctor
}

func (b *doctorBuilder) canSaveHistory(c DoctorContext, e statechart.Event) bool {
	return b.isDoctor(c, e) && c.HasSelection && strings.TrimSpace(c.HistoryDraft) != ""
}

// pullFromData rebuilds the patient list and the localized availability
// buffer from the data machine's snapshot.
func (b *doctorBuilder) pullFromData(c DoctorContext, _ statechart.Event) DoctorContext {
	snap := b.bus.GetSnapshot(IDData)
	data, ok := statechart.SnapshotContext[DataContext](snap)
	if !ok {
		b.log.Warn().Str("machine", snap.MachineID).Msg("unreadable data snapshot")
		return c
	}
	c.Patients = data.Patients
	c.Week = localizeWeek(data.Availability)
	return c
}

func (b *doctorBuilder) selectPatient(c DoctorContext, e statechart.Event) DoctorContext {
	if p, ok := e.Data.(SelectPatientPayload); ok {
		c.Selected = p.Patient
		c.HasSelection = true
		c.HistoryDraft = ""
	}
	return c
}

func (b *doctorBuilder) clearSelection(c DoctorContext, _ statechart.Event) DoctorContext {
	c.Selected = service.Patient{}
	c.HasSelection = false
	c.HistoryDraft = ""
	return c
}

func (b *doctorBuilder) updateDraft(c DoctorContext, e statechart.Event) DoctorContext {
	if p, ok := e.Data.(HistoryDraftPayload); ok {
		c.HistoryDraft = p.Description
	}
	return c
}

func (b *doctorBuilder) clearDraft(c DoctorContext, _ statechart.Event) DoctorContext {
	c.HistoryDraft = ""
	c.Error = ""
	return c
}

func (b *doctorBuilder) saveHistory(ctx context.Context, c DoctorContext, _ statechart.Event) (any, error) {
	entry, err := b.histories.AddForTurn(ctx, c.AccessToken, service.MedicalHistory{
		PatientID:   c.Selected.ID,
		Description: c.HistoryDraft,
		Date:        time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *doctorBuilder) fetchPatients(ctx context.Context, c DoctorContext, _ statechart.Event) (any, error) {
	patients, err := b.svc.Patients(ctx, c.AccessToken, c.DoctorID)
	if err != nil {
		return nil, err
	}
	return patients, nil
}

func (b *doctorBuilder) storePatients(c DoctorContext, e statechart.Event) DoctorContext {
	if patients, ok := e.Data.([]service.Patient); ok {
		c.Patients = patients
		c.Error = ""
	}
	return c
}

// editDay replaces one weekday's slots in the edit buffer. The payload names
// the day in its localized form.
func (b *doctorBuilder) editDay(c DoctorContext, e statechart.Event) DoctorContext {
	p, ok := e.Data.(EditAvailabilityPayload)
	if !ok {
		return c
	}
	for i := range c.Week {
		if c.Week[i].Day == p.Day {
			c.Week[i].Slots = p.Slots
			c.Week[i].Enabled = p.Enabled
			break
		}
	}
	return c
}

func (b *doctorBuilder) saveAvailability(ctx context.Context, c DoctorContext, _ statechart.Event) (any, error) {
	if err := b.svc.SaveAvailability(ctx, c.AccessToken, c.DoctorID, serverWeek(c.Week)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *doctorBuilder) storeError(c DoctorContext, e statechart.Event) DoctorContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

func (b *doctorBuilder) loadSelectedHistory(c DoctorContext, _ statechart.Event) {
	b.requestHistory(c, false)
}

// reloadSelectedHistory bypasses the history machine's freshness guard; it
// runs after a save so the cache picks up the new entry.
func (b *doctorBuilder) reloadSelectedHistory(c DoctorContext, _ statechart.Event) {
	b.requestHistory(c, true)
}

func (b *doctorBuilder) requestHistory(c DoctorContext, force bool) {
	if !c.HasSelection {
		return
	}
	b.bus.SendToMachine(context.Background(), IDHistory, statechart.Event{
		Type: EvLoadPatientMedicalHistory,
		Data: LoadHistoryPayload{PatientID: c.Selected.ID, Force: force},
	})
}

func (b *doctorBuilder) refreshData(DoctorContext, statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDData, statechart.Event{Type: EvLoadData})
}
