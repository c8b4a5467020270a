package machine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/service/fake"
	"github.com/medturn/portal/statechart"
)

const (
	waitTimeout = 5 * time.Second
	pollEvery   = 5 * time.Millisecond
)

// harness wires all nine machines over an in-memory backend seeded with one
// doctor, one patient, one pending turn and one notification for the patient.
type harness struct {
	t       *testing.T
	ctx     context.Context
	backend *fake.Backend
	store   *fake.SessionStore
	bus     *orchestrator.Bus

	doctorID  string
	patientID string
	turnID    string
	noticeID  string
}

// newHarness seeds the backend, runs any pre-wire setup and starts the
// machines. The default snackbar timeout is far above the wait window so
// auto-dismiss never interferes with assertions; tests about dismissal pass a
// short one explicitly.
func newHarness(t *testing.T, opts machine.Options, setup ...func(*harness)) *harness {
	t.Helper()
	h := &harness{t: t, backend: fake.NewBackend(), store: &fake.SessionStore{}}
	h.doctorID = h.backend.SeedUser("Dra. García", "garcia@portal.test", "medico123", service.RoleDoctor)
	h.patientID = h.backend.SeedUser("Juan Pérez", "juan@portal.test", "paciente123", service.RolePatient)
	h.turnID = h.backend.SeedTurn(service.Turn{
		PatientID: h.patientID,
		DoctorID:  h.doctorID,
		Date:      "2026-09-07",
		Time:      "10:00",
		Status:    service.TurnPending,
	})
	h.noticeID = h.backend.SeedNotification(h.patientID, "Recuerde su turno del lunes")

	for _, fn := range setup {
		fn(h)
	}

	if opts.SnackbarAutoDismiss <= 0 {
		opts.SnackbarAutoDismiss = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.ctx = ctx

	bus, err := machine.Wire(ctx, machine.Services{
		Auth:          h.backend,
		Sessions:      h.store,
		Data:          h.backend,
		Turns:         h.backend,
		Doctors:       h.backend,
		Histories:     h.backend,
		Notifications: fake.NotificationsAPI{Backend: h.backend},
		Profiles:      fake.ProfilesAPI{Backend: h.backend},
		Storage:       h.backend,
	}, opts, zerolog.Nop())
	require.NoError(t, err)
	h.bus = bus
	return h
}

func (h *harness) send(id, eventType string, data any) {
	h.t.Helper()
	<-h.bus.SendToMachine(h.ctx, id, statechart.Event{Type: eventType, Data: data})
}

// waitState blocks until a region of a machine reaches the wanted state.
func (h *harness) waitState(id, region, want string) {
	h.t.Helper()
	require.Eventuallyf(h.t, func() bool {
		return h.bus.GetSnapshot(id).StateValue[region] == want
	}, waitTimeout, pollEvery,
		"machine %s region %s never reached %s (last: %s)",
		id, region, want, h.bus.GetSnapshot(id).StateValue[region])
}

// wait blocks until a snapshot of the machine satisfies cond.
func (h *harness) wait(id string, cond func(statechart.Snapshot) bool) {
	h.t.Helper()
	require.Eventuallyf(h.t, func() bool {
		return cond(h.bus.GetSnapshot(id))
	}, waitTimeout, pollEvery, "machine %s never satisfied condition", id)
}

// snapCtx reads a machine's typed context out of a bus snapshot.
func snapCtx[C statechart.Cloneable[C]](t *testing.T, bus *orchestrator.Bus, id string) C {
	t.Helper()
	c, ok := statechart.SnapshotContext[C](bus.GetSnapshot(id))
	require.True(t, ok, "snapshot of %s holds the wrong context type", id)
	return c
}

func (h *harness) authCtx() machine.AuthContext {
	return snapCtx[machine.AuthContext](h.t, h.bus, machine.IDAuth)
}

func (h *harness) uiCtx() machine.UIContext {
	return snapCtx[machine.UIContext](h.t, h.bus, machine.IDUI)
}

func (h *harness) turnCtx() machine.TurnContext {
	return snapCtx[machine.TurnContext](h.t, h.bus, machine.IDTurn)
}

func (h *harness) doctorCtx() machine.DoctorContext {
	return snapCtx[machine.DoctorContext](h.t, h.bus, machine.IDDoctor)
}

func (h *harness) historyCtx() machine.HistoryContext {
	return snapCtx[machine.HistoryContext](h.t, h.bus, machine.IDHistory)
}

func (h *harness) notificationCtx() machine.NotificationContext {
	return snapCtx[machine.NotificationContext](h.t, h.bus, machine.IDNotification)
}

func (h *harness) profileCtx() machine.ProfileContext {
	return snapCtx[machine.ProfileContext](h.t, h.bus, machine.IDProfile)
}

// login submits the credentials form and waits for the session broadcast to
// land on the turn machine, which every flow after login depends on.
func (h *harness) login(email, password string) {
	h.t.Helper()
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "email", Value: email})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "password", Value: password})
	h.send(machine.IDAuth, machine.EvSubmit, nil)
	h.waitState(machine.IDAuth, "auth", "authenticated")
	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && c.AccessToken != ""
	})
}

// loginPatient signs the seeded patient in and waits for the notification
// loop to surface the seeded alert, so later snackbar assertions do not race
// against it.
func (h *harness) loginPatient() {
	h.t.Helper()
	h.login("juan@portal.test", "paciente123")
	h.waitState(machine.IDNotification, "notification", "showingNotifications")
}

func (h *harness) loginDoctor() {
	h.t.Helper()
	h.login("garcia@portal.test", "medico123")
	// The doctor's patient roster arrives with the data bundle.
	h.wait(machine.IDDoctor, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.DoctorContext](s)
		return ok && len(c.Patients) > 0
	})
}

// turnByID finds a turn in the turn machine's current context.
func (h *harness) turnByID(id string) (service.Turn, bool) {
	for _, t := range h.turnCtx().Turns {
		if t.ID == id {
			return t, true
		}
	}
	return service.Turn{}, false
}
