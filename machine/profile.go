package machine

import (
	"context"
	"maps"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// ProfileContext holds the editable profile form plus the last server-side
// copy of the record.
type ProfileContext struct {
	AccessToken string
	UserID      string

	Form    map[string]string
	Profile service.Profile
	Error   string
}

func (c ProfileContext) Clone() ProfileContext {
	c.Form = maps.Clone(c.Form)
	return c
}

type profileBuilder struct {
	bus *orchestrator.Bus
	svc service.Profiles
	log zerolog.Logger
}

// NewProfile builds the profile machine actor.
func NewProfile(bus *orchestrator.Bus, svc service.Profiles, log zerolog.Logger) *statechart.Actor[ProfileContext] {
	b := &profileBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *profileBuilder) machine() *statechart.Machine[ProfileContext] {
	return &statechart.Machine[ProfileContext]{
		ID:             IDProfile,
		Events:         profileEvents,
		InitialContext: func() ProfileContext { return ProfileContext{Form: map[string]string{}} },
		Regions: []statechart.Region[ProfileContext]{{
			Name:    "profile",
			Initial: "idle",
			States: map[string]*statechart.State[ProfileContext]{
				"idle": {
					On: map[string][]statechart.Transition[ProfileContext]{
						EvSetAuth:           {{Assign: []statechart.Reducer[ProfileContext]{b.setAuth}}},
						EvUpdateProfileForm: {{Assign: []statechart.Reducer[ProfileContext]{b.updateForm}}},
						EvSaveProfile:       {{Target: "savingProfile", Guard: b.hasSession}},
						EvUpdateProfile:     {{Target: "updatingProfile", Guard: b.hasSession}},
						EvDeactivateAccount: {{Target: "deactivatingAccount", Guard: b.hasSession}},
					},
				},
				"savingProfile": {
					Invoke: &statechart.Invoke[ProfileContext]{
						Src: b.save,
						OnDone: []statechart.Transition[ProfileContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[ProfileContext]{b.storeProfile},
								Effects: []statechart.Effect[ProfileContext]{
									snack[ProfileContext](b.bus, "Perfil guardado correctamente", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[ProfileContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[ProfileContext]{b.storeError},
								Effects: []statechart.Effect[ProfileContext]{snackFailure[ProfileContext](b.bus)},
							},
						},
					},
				},
				"updatingProfile": {
					Invoke: &statechart.Invoke[ProfileContext]{
						Src: b.update,
						OnDone: []statechart.Transition[ProfileContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[ProfileContext]{b.storeProfile, b.fillForm},
								Effects: []statechart.Effect[ProfileContext]{
									snack[ProfileContext](b.bus, "Perfil actualizado correctamente", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[ProfileContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[ProfileContext]{b.storeError},
								Effects: []statechart.Effect[ProfileContext]{snackFailure[ProfileContext](b.bus)},
							},
						},
					},
				},
				"deactivatingAccount": {
					Invoke: &statechart.Invoke[ProfileContext]{
						Src: b.deactivate,
						OnDone: []statechart.Transition[ProfileContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[ProfileContext]{b.resetDefaults},
								Effects: []statechart.Effect[ProfileContext]{
									b.requestLogout,
									snack[ProfileContext](b.bus, "Cuenta desactivada", SeverityInfo),
								},
							},
						},
						OnError: []statechart.Transition[ProfileContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[ProfileContext]{b.storeError},
								Effects: []statechart.Effect[ProfileContext]{snackFailure[ProfileContext](b.bus)},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *profileBuilder) setAuth(c ProfileContext, e statechart.Event) ProfileContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
		c.UserID = p.UserID
	}
	return c
}

func (b *profileBuilder) hasSession(c ProfileContext, _ statechart.Event) bool {
	return c.AccessToken != "" && c.UserID != ""
}

func (b *profileBuilder) updateForm(c ProfileContext, e statechart.Event) ProfileContext {
	if p, ok := e.Data.(UpdateFormPayload); ok {
		c.Form[p.Key] = p.Value
		c.Error = ""
	}
	return c
}

func (b *profileBuilder) formProfile(c ProfileContext) service.Profile {
	return service.Profile{
		ID:      c.UserID,
		Name:    c.Form["name"],
		Email:   c.Form["email"],
		Phone:   c.Form["phone"],
		Address: c.Form["address"],
	}
}

func (b *profileBuilder) save(ctx context.Context, c ProfileContext, _ statechart.Event) (any, error) {
	profile, err := b.svc.Save(ctx, c.AccessToken, b.formProfile(c))
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (b *profileBuilder) update(ctx context.Context, c ProfileContext, _ statechart.Event) (any, error) {
	profile, err := b.svc.Update(ctx, c.AccessToken, b.formProfile(c))
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (b *profileBuilder) deactivate(ctx context.Context, c ProfileContext, _ statechart.Event) (any, error) {
	if err := b.svc.Deactivate(ctx, c.AccessToken, c.UserID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *profileBuilder) storeProfile(c ProfileContext, e statechart.Event) ProfileContext {
	if profile, ok := e.Data.(service.Profile); ok {
		c.Profile = profile
		c.Error = ""
	}
	return c
}

// fillForm flattens the server record back into the form so the edit view
// reflects whatever normalization the backend applied.
func (b *profileBuilder) fillForm(c ProfileContext, _ statechart.Event) ProfileContext {
	c.Form = map[string]string{
		"name":    c.Profile.Name,
		"email":   c.Profile.Email,
		"phone":   c.Profile.Phone,
		"address": c.Profile.Address,
	}
	return c
}

func (b *profileBuilder) storeError(c ProfileContext, e statechart.Event) ProfileContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

func (b *profileBuilder) resetDefaults(ProfileContext, statechart.Event) ProfileContext {
	return ProfileContext{Form: map[string]string{}}
}

// requestLogout routes through the UI machine so every session-dependent
// machine resets alongside auth.
func (b *profileBuilder) requestLogout(ProfileContext, statechart.Event) {
	b.bus.Send(context.Background(), statechart.Event{Type: EvLogout})
}
