package machine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/service/fake"
	"github.com/medturn/portal/statechart"
)

func TestLoginHappyPath(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	auth := h.authCtx()
	assert.True(t, auth.IsAuthenticated)
	assert.NotEmpty(t, auth.AccessToken)
	assert.NotEmpty(t, auth.RefreshToken)
	assert.Equal(t, h.patientID, auth.UserID)
	assert.Equal(t, service.RolePatient, auth.Role)
	assert.Empty(t, auth.Form, "successful login clears the form")

	sess, ok := h.store.Load()
	require.True(t, ok, "session is persisted on login")
	assert.Equal(t, auth.AccessToken, sess.AccessToken)

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.Route == "/home"
	})

	// The session broadcast plus data load reaches the turn machine.
	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && len(c.Turns) == 1
	})
}

func TestLoginValidationStopsBeforeTheBackend(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "email", Value: "not-an-email"})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "password", Value: "paciente123"})
	h.send(machine.IDAuth, machine.EvSubmit, nil)

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.Equal(t, "Ingresa un email válido", h.authCtx().Error)
	assert.Zero(t, h.backend.Calls("Login"))

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.SnackbarOpen && c.SnackbarSeverity == machine.SeverityError
	})
	assert.Equal(t, "Ingresa un email válido", h.uiCtx().SnackbarMessage)
}

func TestLoginShortPasswordRejected(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "email", Value: "juan@portal.test"})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "password", Value: "corto"})
	h.send(machine.IDAuth, machine.EvSubmit, nil)

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.Equal(t, "La contraseña debe tener al menos 6 caracteres", h.authCtx().Error)
	assert.Zero(t, h.backend.Calls("Login"))
}

func TestLoginBadCredentials(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "email", Value: "juan@portal.test"})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "password", Value: "incorrecta"})
	h.send(machine.IDAuth, machine.EvSubmit, nil)

	h.wait(machine.IDAuth, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.AuthContext](s)
		return ok && s.StateValue["auth"] == "idle" && c.Error != ""
	})
	auth := h.authCtx()
	assert.False(t, auth.IsAuthenticated)
	assert.Equal(t, fake.ErrBadCredentials.Error(), auth.Error)
	assert.Equal(t, 1, h.backend.Calls("Login"))
}

func TestRegisterThenLogin(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDAuth, machine.EvSetMode, machine.SetModePayload{Mode: machine.ModeRegister, IsPatient: true})
	for key, value := range map[string]string{
		"name":      "Ana López",
		"email":     "ana@portal.test",
		"password":  "secreta1",
		"insurance": "OSDE",
	} {
		h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: key, Value: value})
	}
	h.send(machine.IDAuth, machine.EvSubmit, nil)

	// Registration drops back to the login form instead of authenticating.
	h.wait(machine.IDAuth, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.AuthContext](s)
		return ok && s.StateValue["auth"] == "idle" && c.Mode == machine.ModeLogin
	})
	assert.Equal(t, 1, h.backend.Calls("Register"))
	assert.False(t, h.authCtx().IsAuthenticated)

	h.login("ana@portal.test", "secreta1")
	assert.True(t, h.authCtx().IsAuthenticated)
}

func TestRegisterRequiresInsuranceForPatients(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDAuth, machine.EvSetMode, machine.SetModePayload{Mode: machine.ModeRegister, IsPatient: true})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "name", Value: "Ana López"})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "email", Value: "ana@portal.test"})
	h.send(machine.IDAuth, machine.EvUpdateForm, machine.UpdateFormPayload{Key: "password", Value: "secreta1"})
	h.send(machine.IDAuth, machine.EvSubmit, nil)

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.Equal(t, "La obra social es obligatoria", h.authCtx().Error)
	assert.Zero(t, h.backend.Calls("Register"))
}

func TestSessionRestoreOnStartup(t *testing.T) {
	h := newHarness(t, machine.Options{}, func(h *harness) {
		sess, err := h.backend.Login(context.Background(), service.Credentials{
			Email:    "juan@portal.test",
			Password: "paciente123",
		})
		require.NoError(t, err)
		require.NoError(t, h.store.Save(sess))
	})

	h.waitState(machine.IDAuth, "auth", "authenticated")
	assert.Equal(t, h.patientID, h.authCtx().UserID)

	// Restore triggers the same broadcast as a fresh login.
	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && len(c.Turns) == 1
	})
}

func TestStaleStoredSessionIsIgnored(t *testing.T) {
	h := newHarness(t, machine.Options{}, func(h *harness) {
		require.NoError(t, h.store.Save(service.Session{
			AccessToken:  "access-stale",
			RefreshToken: "refresh-stale",
			UserID:       h.patientID,
			Role:         service.RolePatient,
			Status:       "REVOKED",
		}))
	})

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.False(t, h.authCtx().IsAuthenticated)
}

func TestAuthErrorRefreshesAndReplays(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()
	oldAccess := h.authCtx().AccessToken

	var mu sync.Mutex
	var replayedWith string
	h.send(machine.IDAuth, machine.EvHandleAuthError, machine.AuthErrorPayload{
		Retry: func(accessToken string) {
			mu.Lock()
			replayedWith = accessToken
			mu.Unlock()
		},
	})

	h.wait(machine.IDAuth, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.AuthContext](s)
		return ok && s.StateValue["auth"] == "authenticated" && c.AccessToken != oldAccess
	})
	assert.Equal(t, 1, h.backend.Calls("Refresh"))

	auth := h.authCtx()
	mu.Lock()
	assert.Equal(t, auth.AccessToken, replayedWith)
	mu.Unlock()

	sess, ok := h.store.Load()
	require.True(t, ok)
	assert.Equal(t, auth.AccessToken, sess.AccessToken, "rotated session is persisted")
}

func TestFailedRefreshEndsTheSession(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.backend.FailNext("Refresh", fake.ErrUnknownToken)
	h.send(machine.IDAuth, machine.EvHandleAuthError, machine.AuthErrorPayload{})

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.False(t, h.authCtx().IsAuthenticated)

	_, ok := h.store.Load()
	assert.False(t, ok, "stored session is cleared when refresh fails")

	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.Route == "/login"
	})
}

func TestLogoutResetsEveryMachine(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()
	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && len(c.Turns) == 1
	})

	// Logout is requested through the UI machine, which fans it out.
	h.send(machine.IDUI, machine.EvLogout, nil)

	h.waitState(machine.IDAuth, "auth", "idle")
	assert.False(t, h.authCtx().IsAuthenticated)
	assert.Equal(t, 1, h.backend.Calls("Logout"))

	_, ok := h.store.Load()
	assert.False(t, ok, "stored session is cleared on logout")

	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && c.AccessToken == "" && len(c.Turns) == 0
	})
	h.wait(machine.IDUI, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.UIContext](s)
		return ok && c.Route == "/login"
	})
}
