package machine

import (
	"context"
	"maps"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// Auth form modes.
const (
	ModeLogin    = "login"
	ModeRegister = "register"
)

// AuthContext is the extended state of the auth machine. The session fields
// mirror service.Session so other machines can consume them from snapshots.
type AuthContext struct {
	AccessToken     string
	RefreshToken    string
	UserID          string
	Role            service.Role
	Status          string
	IsAuthenticated bool

	Mode      string
	IsPatient bool
	Form      map[string]string
	Error     string

	// PendingRetry replays the request that hit an expired token once a
	// fresh access token is available.
	PendingRetry func(accessToken string)
}

func (c AuthContext) Clone() AuthContext {
	c.Form = maps.Clone(c.Form)
	return c
}

func defaultAuthContext() AuthContext {
	return AuthContext{
		Mode:      ModeLogin,
		IsPatient: true,
		Form:      map[string]string{},
	}
}

type authBuilder struct {
	bus   *orchestrator.Bus
	svc   service.Auth
	store service.SessionStore
	log   zerolog.Logger
}

// NewAuth builds the auth machine actor. It restores a previously stored
// session on startup and owns login, registration, token refresh and logout.
func NewAuth(bus *orchestrator.Bus, svc service.Auth, store service.SessionStore, log zerolog.Logger) *statechart.Actor[AuthContext] {
	b := &authBuilder{bus: bus, svc: svc, store: store, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *authBuilder) machine() *statechart.Machine[AuthContext] {
	return &statechart.Machine[AuthContext]{
		ID:             IDAuth,
		Events:         authEvents,
		InitialContext: defaultAuthContext,
		Regions: []statechart.Region[AuthContext]{{
			Name:    "auth",
			Initial: "checkingAuth",
			States: map[string]*statechart.State[AuthContext]{
				"checkingAuth": {
					Entry: []statechart.Reducer[AuthContext]{b.restoreSession},
					Always: []statechart.Transition[AuthContext]{
						{Target: "authenticated", Guard: b.isAuthenticated},
						{Target: "idle"},
					},
				},
				"idle": {
					On: map[string][]statechart.Transition[AuthContext]{
						EvUpdateForm: {{Assign: []statechart.Reducer[AuthContext]{b.updateForm}}},
						EvSetMode:    {{Assign: []statechart.Reducer[AuthContext]{b.setMode}}},
						EvSubmit:     {{Target: "validating"}},
						EvSetAuth:    {{Target: "authenticated", Assign: []statechart.Reducer[AuthContext]{b.adoptSession}}},
					},
				},
				"validating": {
					Always: []statechart.Transition[AuthContext]{
						{Target: "submitting", Guard: b.formValid},
						{
							Target: "idle",
							Assign: []statechart.Reducer[AuthContext]{b.keepValidationError},
							Effects: []statechart.Effect[AuthContext]{
								b.validationToast,
							},
						},
					},
				},
				"submitting": {
					Invoke: &statechart.Invoke[AuthContext]{
						Src: b.submit,
						OnDone: []statechart.Transition[AuthContext]{
							{
								Target: "authenticated",
								Guard:  b.isLoginMode,
								Assign: []statechart.Reducer[AuthContext]{b.adoptSettledSession},
								Effects: []statechart.Effect[AuthContext]{
									b.persistSession,
									navigate[AuthContext](b.bus, "/home"),
									snack[AuthContext](b.bus, "Sesión iniciada correctamente", SeveritySuccess),
								},
							},
							{
								Target: "idle",
								Assign: []statechart.Reducer[AuthContext]{b.toLoginMode},
								Effects: []statechart.Effect[AuthContext]{
									snack[AuthContext](b.bus, "Registro exitoso, ya puedes iniciar sesión", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[AuthContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[AuthContext]{b.keepSubmitError},
								Effects: []statechart.Effect[AuthContext]{snackFailure[AuthContext](b.bus)},
							},
						},
					},
				},
				"authenticated": {
					EntryFx: []statechart.Effect[AuthContext]{
						b.broadcastSession,
						b.requestData,
					},
					On: map[string][]statechart.Transition[AuthContext]{
						EvLogout: {{Target: "loggingOut"}},
						EvHandleAuthError: {{
							Target: "refreshingSession",
							Assign: []statechart.Reducer[AuthContext]{b.storeRetry},
						}},
					},
				},
				"refreshingSession": {
					Invoke: &statechart.Invoke[AuthContext]{
						Src: b.refresh,
						OnDone: []statechart.Transition[AuthContext]{
							{
								Target: "authenticated",
								Assign: []statechart.Reducer[AuthContext]{b.adoptSettledSession},
								Effects: []statechart.Effect[AuthContext]{
									b.persistSession,
									b.replayRetry,
								},
							},
						},
						OnError: []statechart.Transition[AuthContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[AuthContext]{b.resetDefaults},
								Effects: []statechart.Effect[AuthContext]{
									b.clearStoredSession,
									navigate[AuthContext](b.bus, "/login"),
									snack[AuthContext](b.bus, "Sesión expirada, inicia sesión nuevamente", SeverityWarning),
								},
							},
						},
					},
				},
				"loggingOut": {
					Invoke: &statechart.Invoke[AuthContext]{
						Src: b.logout,
						OnDone: []statechart.Transition[AuthContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[AuthContext]{b.resetDefaults},
								Effects: []statechart.Effect[AuthContext]{navigate[AuthContext](b.bus, "/login")},
							},
						},
						OnError: []statechart.Transition[AuthContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[AuthContext]{b.resetDefaults},
								Effects: []statechart.Effect[AuthContext]{navigate[AuthContext](b.bus, "/login")},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *authBuilder) restoreSession(c AuthContext, _ statechart.Event) AuthContext {
	sess, ok := b.store.Load()
	if !ok || sess.AccessToken == "" || sess.RefreshToken == "" || sess.Status != service.StatusActive {
		return c
	}
	c.AccessToken = sess.AccessToken
	c.RefreshToken = sess.RefreshToken
	c.UserID = sess.UserID
	c.Role = sess.Role
	c.Status = sess.Status
	c.IsAuthenticated = true
	return c
}

func (b *authBuilder) isAuthenticated(c AuthContext, _ statechart.Event) bool {
	return c.IsAuthenticated
}

func (b *authBuilder) isLoginMode(c AuthContext, _ statechart.Event) bool {
	return c.Mode == ModeLogin
}

func (b *authBuilder) updateForm(c AuthContext, e statechart.Event) AuthContext {
	p, ok := e.Data.(UpdateFormPayload)
	if !ok {
		return c
	}
	c.Form[p.Key] = p.Value
	c.Error = ""
	return c
}

func (b *authBuilder) setMode(c AuthContext, e statechart.Event) AuthContext {
	p, ok := e.Data.(SetModePayload)
	if !ok {
		return c
	}
	c.Mode = p.Mode
	c.IsPatient = p.IsPatient
	c.Error = ""
	return c
}

// validationError returns the first failing rule of the current form, or ""
// when the form can be submitted.
func validationError(c AuthContext) string {
	if !strings.Contains(c.Form["email"], "@") {
		return "Ingresa un email válido"
	}
	if len(c.Form["password"]) < 6 {
		return "La contraseña debe tener al menos 6 caracteres"
	}
	if c.Mode == ModeRegister {
		if strings.TrimSpace(c.Form["name"]) == "" {
			return "El nombre es obligatorio"
		}
		if c.IsPatient && strings.TrimSpace(c.Form["insurance"]) == "" {
			return "La obra social es obligatoria"
		}
	}
	return ""
}

func (b *authBuilder) formValid(c AuthContext, _ statechart.Event) bool {
	return validationError(c) == ""
}

func (b *authBuilder) keepValidationError(c AuthContext, _ statechart.Event) AuthContext {
	c.Error = validationError(c)
	return c
}

func (b *authBuilder) validationToast(c AuthContext, _ statechart.Event) {
	b.bus.Send(context.Background(), statechart.Event{
		Type: EvOpenSnackbar,
		Data: SnackbarPayload{Message: c.Error, Severity: SeverityError},
	})
}

func (b *authBuilder) submit(ctx context.Context, c AuthContext, _ statechart.Event) (any, error) {
	if c.Mode == ModeRegister {
		err := b.svc.Register(ctx, service.Registration{
			Name:      c.Form["name"],
			Email:     c.Form["email"],
			Password:  c.Form["password"],
			IsPatient: c.IsPatient,
			Insurance: c.Form["insurance"],
		})
		return nil, err
	}
	sess, err := b.svc.Login(ctx, service.Credentials{
		Email:    c.Form["email"],
		Password: c.Form["password"],
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (b *authBuilder) refresh(ctx context.Context, c AuthContext, _ statechart.Event) (any, error) {
	sess, err := b.svc.Refresh(ctx, c.RefreshToken)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (b *authBuilder) logout(ctx context.Context, c AuthContext, _ statechart.Event) (any, error) {
	if err := b.svc.Logout(ctx, c.AccessToken); err != nil {
		b.log.Warn().Err(err).Msg("remote logout failed")
	}
	if err := b.store.Clear(); err != nil {
		b.log.Warn().Err(err).Msg("clearing stored session failed")
	}
	return nil, nil
}

func (b *authBuilder) adoptSession(c AuthContext, e statechart.Event) AuthContext {
	p, ok := e.Data.(SetAuthPayload)
	if !ok {
		return c
	}
	return sessionInto(c, service.Session{
		AccessToken: p.AccessToken,
		UserID:      p.UserID,
		Role:        p.Role,
		Status:      service.StatusActive,
	})
}

func (b *authBuilder) adoptSettledSession(c AuthContext, e statechart.Event) AuthContext {
	sess, ok := e.Data.(service.Session)
	if !ok {
		return c
	}
	return sessionInto(c, sess)
}

func sessionInto(c AuthContext, sess service.Session) AuthContext {
	c.AccessToken = sess.AccessToken
	c.RefreshToken = sess.RefreshToken
	c.UserID = sess.UserID
	c.Role = sess.Role
	c.Status = sess.Status
	c.IsAuthenticated = true
	c.Form = map[string]string{}
	c.Error = ""
	return c
}

func (b *authBuilder) toLoginMode(c AuthContext, _ statechart.Event) AuthContext {
	c.Mode = ModeLogin
	c.Error = ""
	return c
}

func (b *authBuilder) keepSubmitError(c AuthContext, e statechart.Event) AuthContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

func (b *authBuilder) storeRetry(c AuthContext, e statechart.Event) AuthContext {
	if p, ok := e.Data.(AuthErrorPayload); ok {
		c.PendingRetry = p.Retry
	}
	return c
}

func (b *authBuilder) persistSession(c AuthContext, _ statechart.Event) {
	err := b.store.Save(service.Session{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		UserID:       c.UserID,
		Role:         c.Role,
		Status:       c.Status,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("persisting session failed")
	}
}

func (b *authBuilder) replayRetry(c AuthContext, _ statechart.Event) {
	if c.PendingRetry != nil {
		c.PendingRetry(c.AccessToken)
	}
}

// broadcastSession seeds every session-dependent machine with the fresh
// credentials whenever the actor lands on authenticated.
func (b *authBuilder) broadcastSession(c AuthContext, _ statechart.Event) {
	payload := SetAuthPayload{AccessToken: c.AccessToken, UserID: c.UserID, Role: c.Role}
	targets := []string{IDData, IDTurn, IDDoctor, IDHistory, IDNotification, IDProfile, IDFiles}
	for _, id := range targets {
		b.bus.SendToMachine(context.Background(), id, statechart.Event{
			Type: EvSetAuth,
			Data: payload,
		})
	}
}

func (b *authBuilder) requestData(AuthContext, statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDData, statechart.Event{Type: EvLoadData})
}

func (b *authBuilder) resetDefaults(AuthContext, statechart.Event) AuthContext {
	return defaultAuthContext()
}

// clearStoredSession drops the persisted session without a remote logout; the
// refresh token is already dead when this runs.
func (b *authBuilder) clearStoredSession(AuthContext, statechart.Event) {
	if err := b.store.Clear(); err != nil {
		b.log.Warn().Err(err).Msg("clearing stored session failed")
	}
}
