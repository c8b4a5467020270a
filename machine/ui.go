package machine

import (
	"context"
	"maps"
	"time"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/statechart"
)

// UIContext holds the shared presentation state: route, named toggles, the
// single snackbar slot and the confirmation dialog.
type UIContext struct {
	Route   string
	Toggles map[string]bool

	SnackbarOpen     bool
	SnackbarMessage  string
	SnackbarSeverity string
	// SnackbarSeq identifies the latest snackbar. A dismiss timer carries
	// the sequence it was armed for; a mismatch means a newer snackbar
	// replaced the one the timer belongs to.
	SnackbarSeq uint64

	DialogOpen      bool
	DialogAction    string
	DialogRequestID string
}

func (c UIContext) Clone() UIContext {
	c.Toggles = maps.Clone(c.Toggles)
	return c
}

type uiBuilder struct {
	bus         *orchestrator.Bus
	autoDismiss time.Duration
	log         zerolog.Logger
}

// NewUI builds the UI machine actor. autoDismiss is how long a snackbar stays
// visible before the machine closes it on its own.
func NewUI(bus *orchestrator.Bus, autoDismiss time.Duration, log zerolog.Logger) *statechart.Actor[UIContext] {
	b := &uiBuilder{bus: bus, autoDismiss: autoDismiss, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *uiBuilder) machine() *statechart.Machine[UIContext] {
	return &statechart.Machine[UIContext]{
		ID:     IDUI,
		Events: uiEvents,
		InitialContext: func() UIContext {
			return UIContext{Route: "/login", Toggles: map[string]bool{}}
		},
		Regions: []statechart.Region[UIContext]{{
			Name:    "ui",
			Initial: "idle",
			States: map[string]*statechart.State[UIContext]{
				"idle": {
					On: map[string][]statechart.Transition[UIContext]{
						EvToggle:   {{Assign: []statechart.Reducer[UIContext]{b.toggle}}},
						EvNavigate: {{Assign: []statechart.Reducer[UIContext]{b.setRoute}}},
						EvOpenSnackbar: {{
							Assign:  []statechart.Reducer[UIContext]{b.openSnackbar},
							Effects: []statechart.Effect[UIContext]{b.armDismissTimer},
						}},
						EvCloseSnackbar: {{
							Guard:   b.snackbarOpen,
							Assign:  []statechart.Reducer[UIContext]{b.closeSnackbar},
							Effects: []statechart.Effect[UIContext]{b.notifySnackbarClosed},
						}},
						EvSnackbarTimeout: {{
							Guard:   b.timeoutCurrent,
							Assign:  []statechart.Reducer[UIContext]{b.closeSnackbar},
							Effects: []statechart.Effect[UIContext]{b.notifySnackbarClosed},
						}},
						EvOpenConfirmationDialog:  {{Assign: []statechart.Reducer[UIContext]{b.openDialog}}},
						EvCloseConfirmationDialog: {{Assign: []statechart.Reducer[UIContext]{b.closeDialog}}},
						EvConfirmDialog: {{
							Guard:   b.dialogOpen,
							Effects: []statechart.Effect[UIContext]{b.runDialogAction},
						}},
						EvLogout: {{
							Effects: []statechart.Effect[UIContext]{b.propagateLogout},
						}},
					},
				},
			},
		}},
	}
}

func (b *uiBuilder) toggle(c UIContext, e statechart.Event) UIContext {
	p, ok := e.Data.(TogglePayload)
	if !ok {
		return c
	}
	c.Toggles[p.Key] = !c.Toggles[p.Key]
	return c
}

func (b *uiBuilder) setRoute(c UIContext, e statechart.Event) UIContext {
	if p, ok := e.Data.(NavigatePayload); ok {
		c.Route = p.To
	}
	return c
}

func (b *uiBuilder) openSnackbar(c UIContext, e statechart.Event) UIContext {
	p, ok := e.Data.(SnackbarPayload)
	if !ok {
		return c
	}
	c.SnackbarOpen = true
	c.SnackbarMessage = p.Message
	c.SnackbarSeverity = p.Severity
	c.SnackbarSeq++
	return c
}

func (b *uiBuilder) armDismissTimer(c UIContext, _ statechart.Event) {
	seq := c.SnackbarSeq
	time.AfterFunc(b.autoDismiss, func() {
		b.bus.Send(context.Background(), statechart.Event{
			Type: EvSnackbarTimeout,
			Data: SnackbarTimeoutPayload{Seq: seq},
		})
	})
}

func (b *uiBuilder) snackbarOpen(c UIContext, _ statechart.Event) bool {
	return c.SnackbarOpen
}

func (b *uiBuilder) timeoutCurrent(c UIContext, e statechart.Event) bool {
	p, ok := e.Data.(SnackbarTimeoutPayload)
	return ok && c.SnackbarOpen && p.Seq == c.SnackbarSeq
}

func (b *uiBuilder) closeSnackbar(c UIContext, _ statechart.Event) UIContext {
	c.SnackbarOpen = false
	c.SnackbarMessage = ""
	c.SnackbarSeverity = ""
	return c
}

func (b *uiBuilder) notifySnackbarClosed(UIContext, statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDNotification, statechart.Event{
		Type: EvNotificationClosed,
	})
}

func (b *uiBuilder) openDialog(c UIContext, e statechart.Event) UIContext {
	p, ok := e.Data.(DialogPayload)
	if !ok {
		return c
	}
	c.DialogOpen = true
	c.DialogAction = p.Action
	c.DialogRequestID = p.RequestID
	return c
}

func (b *uiBuilder) dialogOpen(c UIContext, _ statechart.Event) bool {
	return c.DialogOpen
}

func (b *uiBuilder) closeDialog(c UIContext, _ statechart.Event) UIContext {
	c.DialogOpen = false
	c.DialogAction = ""
	c.DialogRequestID = ""
	return c
}

// runDialogAction routes the confirmed action to the turn machine and then
// closes the dialog. The action is read from context because CONFIRM_DIALOG
// itself carries no payload.
func (b *uiBuilder) runDialogAction(c UIContext, _ statechart.Event) {
	ctx := context.Background()
	defer b.bus.Send(ctx, statechart.Event{Type: EvCloseConfirmationDialog})

	var eventType string
	switch c.DialogAction {
	case DialogApprove:
		eventType = EvApproveTurn
	case DialogReject:
		eventType = EvRejectTurn
	case DialogCancelTurn:
		eventType = EvCancelTurn
	default:
		b.log.Warn().Str("action", c.DialogAction).Msg("unknown dialog action")
		return
	}
	b.bus.SendToMachine(ctx, IDTurn, statechart.Event{
		Type: eventType,
		Data: TurnActionPayload{TurnID: c.DialogRequestID},
	})
}

// propagateLogout forwards LOGOUT to the auth machine and resets every other
// session-dependent machine to its initial configuration.
func (b *uiBuilder) propagateLogout(UIContext, statechart.Event) {
	ctx := context.Background()
	b.bus.SendToMachine(ctx, IDAuth, statechart.Event{Type: EvLogout})
	for _, id := range []string{IDData, IDTurn, IDDoctor, IDHistory, IDNotification, IDProfile, IDFiles} {
		b.bus.SendToMachine(ctx, id, statechart.Event{Type: statechart.EventReset})
	}
}
