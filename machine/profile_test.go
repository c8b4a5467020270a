package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/statechart"
)

func TestSaveProfile(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.send(machine.IDProfile, machine.EvUpdateProfileForm, machine.UpdateFormPayload{Key: "phone", Value: "+54 11 5555-0000"})
	h.send(machine.IDProfile, machine.EvUpdateProfileForm, machine.UpdateFormPayload{Key: "address", Value: "Av. Siempreviva 742"})
	h.send(machine.IDProfile, machine.EvSaveProfile, nil)

	h.wait(machine.IDProfile, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.ProfileContext](s)
		return ok && s.StateValue["profile"] == "idle" && c.Profile.Phone == "+54 11 5555-0000"
	})
	assert.Equal(t, 1, h.backend.Calls("Save"))
	assert.Equal(t, "Av. Siempreviva 742", h.profileCtx().Profile.Address)
}

func TestUpdateProfileRefillsTheForm(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.send(machine.IDProfile, machine.EvUpdateProfileForm, machine.UpdateFormPayload{Key: "name", Value: "Juan P. Pérez"})
	h.send(machine.IDProfile, machine.EvUpdateProfile, nil)

	// The form is rebuilt from the server record, keeping untouched fields.
	h.wait(machine.IDProfile, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.ProfileContext](s)
		return ok && s.StateValue["profile"] == "idle" && c.Form["name"] == "Juan P. Pérez"
	})
	assert.Equal(t, 1, h.backend.Calls("UpdateProfile"))
	assert.Equal(t, "juan@portal.test", h.profileCtx().Form["email"])
}

func TestSaveProfileRequiresSession(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDProfile, machine.EvSaveProfile, nil)
	assert.Equal(t, "idle", h.bus.GetSnapshot(machine.IDProfile).StateValue["profile"])
	assert.Zero(t, h.backend.Calls("Save"))
}

func TestDeactivateAccountLogsOutEverywhere(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.send(machine.IDProfile, machine.EvDeactivateAccount, nil)

	h.wait(machine.IDProfile, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.ProfileContext](s)
		return ok && s.StateValue["profile"] == "idle" && c.AccessToken == ""
	})
	assert.Equal(t, 1, h.backend.Calls("Deactivate"))

	// Deactivation routes a logout through the UI machine.
	h.waitState(machine.IDAuth, "auth", "idle")
	assert.False(t, h.authCtx().IsAuthenticated)
	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.Route == "/login"
	})
}
