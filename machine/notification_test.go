package machine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/statechart"
)

func TestLoginStartsNotificationLoop(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.waitState(machine.IDNotification, "notification", "showingNotifications")

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.SnackbarOpen && c.SnackbarMessage == "Recuerde su turno del lunes"
	})
	assert.Equal(t, machine.SeverityInfo, h.uiCtx().SnackbarSeverity)
}

func TestNotificationLoopWalksEveryAlertAndResets(t *testing.T) {
	h := newHarness(t, machine.Options{SnackbarAutoDismiss: 25 * time.Millisecond}, func(h *harness) {
		h.backend.SeedNotification(h.patientID, "Su turno fue rechazado")
	})
	// Plain login: with a short dismiss the showing state is transient and
	// loginPatient's wait could miss it.
	h.login("juan@portal.test", "paciente123")

	// Each auto-dismiss advances the cursor; after the last alert the machine
	// returns to idle with the cursor rewound.
	h.wait(machine.IDNotification, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.NotificationContext](s)
		return ok && s.StateValue["notification"] == "idle" && len(c.Notifications) == 2 && c.Index == 0
	})
	assert.False(t, h.notificationCtx().Showing)
}

func TestRejectionNotificationShowsAsError(t *testing.T) {
	h := newHarness(t, machine.Options{}, func(h *harness) {
		h.backend.SeedNotification(h.doctorID, "El paciente rechazó el turno")
	})
	h.loginDoctor()

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.SnackbarOpen && c.SnackbarSeverity == machine.SeverityError
	})
}

func TestDeleteNotificationWhileShowing(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()
	h.waitState(machine.IDNotification, "notification", "showingNotifications")

	h.send(machine.IDNotification, machine.EvDeleteNotification, machine.DeleteNotificationPayload{
		NotificationID: h.noticeID,
	})

	// The only alert is gone, so the loop has nothing left to resume.
	h.wait(machine.IDNotification, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.NotificationContext](s)
		return ok && s.StateValue["notification"] == "idle" && len(c.Notifications) == 0
	})
	assert.Equal(t, 1, h.backend.Calls("Delete"))
}

func TestFailedDeleteKeepsNotificationRemoved(t *testing.T) {
	h := newHarness(t, machine.Options{}, func(h *harness) {
		h.backend.SeedNotification(h.patientID, "Turno confirmado para el viernes")
	})
	h.loginPatient()
	h.waitState(machine.IDNotification, "notification", "showingNotifications")

	boom := errors.New("notificación protegida")
	h.backend.FailNext("Delete", boom)
	h.send(machine.IDNotification, machine.EvDeleteNotification, machine.DeleteNotificationPayload{
		NotificationID: h.noticeID,
	})

	// The delete is optimistic: the rejected remote call does not bring the
	// alert back, and the loop resumes with the remaining one on screen.
	h.wait(machine.IDNotification, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.NotificationContext](s)
		return ok && s.StateValue["notification"] == "showingNotifications" && len(c.Notifications) == 1
	})
	assert.Equal(t, 1, h.backend.Calls("Delete"))
	assert.NotEqual(t, h.noticeID, h.notificationCtx().Notifications[0].ID)

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.SnackbarOpen && c.SnackbarMessage == "Turno confirmado para el viernes"
	})
	assert.NotEqual(t, boom.Error(), h.uiCtx().SnackbarMessage)
}

func TestLoadWithoutSessionIsDropped(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDNotification, machine.EvLoadNotifications, nil)
	assert.Equal(t, "idle", h.bus.GetSnapshot(machine.IDNotification).StateValue["notification"])
	assert.Zero(t, h.backend.Calls("Notifications"))
}

func TestEmptyInboxSkipsTheLoop(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginDoctor()

	// The doctor has no seeded notifications; the load settles back to idle.
	h.wait(machine.IDNotification, func(s statechart.Snapshot) bool {
		return s.StateValue["notification"] == "idle" && h.backend.Calls("Notifications") >= 1
	})
	assert.Empty(t, h.notificationCtx().Notifications)
}
