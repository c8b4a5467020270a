package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

func selectedPatient(h *harness) service.Patient {
	h.t.Helper()
	patients := h.doctorCtx().Patients
	require.NotEmpty(h.t, patients)
	return patients[0]
}

func TestDoctorRosterArrivesWithDataBundle(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	doctor := h.doctorCtx()
	require.Len(t, doctor.Patients, 1)
	assert.Equal(t, h.patientID, doctor.Patients[0].ID)
	assert.Equal(t, "Juan Pérez", doctor.Patients[0].Name)

	// Availability always carries the full localized week.
	require.Len(t, doctor.Week, 7)
	assert.Equal(t, "Lunes", doctor.Week[0].Day)
	assert.Equal(t, "Domingo", doctor.Week[6].Day)
}

func TestSelectPatientLoadsTheirHistory(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	h.send(machine.IDDoctor, machine.EvSelectPatient, machine.SelectPatientPayload{Patient: selectedPatient(h)})

	h.wait(machine.IDHistory, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.HistoryContext](s)
		return ok && c.LoadedFor == h.patientID
	})
	assert.Equal(t, 1, h.backend.Calls("ForPatient"))
}

func TestSaveHistoryAppendsEntryAndClearsDraft(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	h.send(machine.IDDoctor, machine.EvSelectPatient, machine.SelectPatientPayload{Patient: selectedPatient(h)})
	h.send(machine.IDDoctor, machine.EvUpdateHistoryDraft, machine.HistoryDraftPayload{Description: "Control anual sin novedades"})
	h.send(machine.IDDoctor, machine.EvSaveHistory, nil)

	h.wait(machine.IDHistory, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.HistoryContext](s)
		if !ok {
			return false
		}
		for _, entry := range c.Entries {
			if entry.Description == "Control anual sin novedades" {
				return true
			}
		}
		return false
	})
	assert.Equal(t, 1, h.backend.Calls("AddForTurn"))

	h.wait(machine.IDDoctor, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.DoctorContext](s)
		return ok && s.StateValue["patientManagement"] == "idle" && c.HistoryDraft == ""
	})
}

func TestSaveHistoryRequiresSelectionAndDraft(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	// No selection yet.
	h.send(machine.IDDoctor, machine.EvUpdateHistoryDraft, machine.HistoryDraftPayload{Description: "algo"})
	h.send(machine.IDDoctor, machine.EvSaveHistory, nil)
	assert.Zero(t, h.backend.Calls("AddForTurn"))

	// Selection but a blank draft.
	h.send(machine.IDDoctor, machine.EvSelectPatient, machine.SelectPatientPayload{Patient: selectedPatient(h)})
	h.send(machine.IDDoctor, machine.EvUpdateHistoryDraft, machine.HistoryDraftPayload{Description: "   "})
	h.send(machine.IDDoctor, machine.EvSaveHistory, nil)
	assert.Zero(t, h.backend.Calls("AddForTurn"))
}

func TestEditAndSaveAvailability(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	h.send(machine.IDDoctor, machine.EvEditAvailability, machine.EditAvailabilityPayload{
		Day:     "Lunes",
		Slots:   []string{"09:00", "09:30", "10:00"},
		Enabled: true,
	})
	h.send(machine.IDDoctor, machine.EvSaveAvailability, nil)

	h.wait(machine.IDDoctor, func(s statechart.Snapshot) bool {
		return s.StateValue["availability"] == "idle" && h.backend.Calls("SaveAvailability") == 1
	})

	// The reload round trip keeps the localized edit.
	h.wait(machine.IDDoctor, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.DoctorContext](s)
		return ok && len(c.Week) == 7 && c.Week[0].Enabled && len(c.Week[0].Slots) == 3
	})
	assert.Equal(t, "Lunes", h.doctorCtx().Week[0].Day)
}

func TestSaveAvailabilityRequiresDoctor(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.send(machine.IDDoctor, machine.EvSaveAvailability, nil)
	assert.Zero(t, h.backend.Calls("SaveAvailability"))
}

func TestAvailabilityRegionRunsBesidePatientManagement(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	// Availability edits land while the patient side is mid-refresh.
	h.send(machine.IDDoctor, machine.EvRefreshPatients, nil)
	h.send(machine.IDDoctor, machine.EvEditAvailability, machine.EditAvailabilityPayload{
		Day:     "Viernes",
		Slots:   []string{"14:00"},
		Enabled: true,
	})

	h.waitState(machine.IDDoctor, "patientManagement", "idle")
	doctor := h.doctorCtx()
	assert.True(t, doctor.Week[4].Enabled)
	assert.Equal(t, []string{"14:00"}, doctor.Week[4].Slots)
}
