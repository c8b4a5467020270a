package machine

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// NotificationContext queues the user's pending alerts. Index is the
// authoritative cursor: the snackbar shown on screen is always
// Notifications[Index] while the machine sits in showingNotifications.
type NotificationContext struct {
	AccessToken string
	UserID      string

	Notifications []service.Notification
	Index         int
	// Showing mirrors whether the display loop was active when an async
	// operation started, so the machine can resume it afterwards.
	Showing bool

	Error string
}

func (c NotificationContext) Clone() NotificationContext {
	c.Notifications = slices.Clone(c.Notifications)
	return c
}

type notificationBuilder struct {
	bus *orchestrator.Bus
	svc service.Notifications
	log zerolog.Logger
}

// NewNotification builds the notification machine actor. It walks the alert
// list one snackbar at a time, advancing when the UI reports a close.
func NewNotification(bus *orchestrator.Bus, svc service.Notifications, log zerolog.Logger) *statechart.Actor[NotificationContext] {
	b := &notificationBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *notificationBuilder) machine() *statechart.Machine[NotificationContext] {
	return &statechart.Machine[NotificationContext]{
		ID:             IDNotification,
		Events:         notificationEvents,
		InitialContext: func() NotificationContext { return NotificationContext{} },
		Regions: []statechart.Region[NotificationContext]{{
			Name:    "notification",
			Initial: "idle",
			States: map[string]*statechart.State[NotificationContext]{
				"idle": {
					Entry: []statechart.Reducer[NotificationContext]{b.stopShowing},
					On: map[string][]statechart.Transition[NotificationContext]{
						EvSetAuth: {{
							Assign:  []statechart.Reducer[NotificationContext]{b.setAuth},
							Effects: []statechart.Effect[NotificationContext]{b.requestLoad},
						}},
						EvLoadNotifications: {{Target: "loadingNotifications", Guard: b.hasSession}},
						EvDeleteNotification: {{
							Target: "deletingNotification",
							Guard:  b.canDelete,
							Assign: []statechart.Reducer[NotificationContext]{b.removeOptimistically},
						}},
						EvAllNotificationsShown: {{
							Assign: []statechart.Reducer[NotificationContext]{b.resetCursor},
						}},
					},
				},
				"loadingNotifications": {
					Invoke: &statechart.Invoke[NotificationContext]{
						Src: b.load,
						OnDone: []statechart.Transition[NotificationContext]{
							{
								Target: "showingNotifications",
								Guard:  b.settledNonEmpty,
								Assign: []statechart.Reducer[NotificationContext]{b.storeList},
							},
							{
								Target: "idle",
								Assign: []statechart.Reducer[NotificationContext]{b.storeList},
							},
						},
						OnError: []statechart.Transition[NotificationContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[NotificationContext]{b.storeError},
							},
						},
					},
				},
				"showingNotifications": {
					Entry:   []statechart.Reducer[NotificationContext]{b.startShowing},
					EntryFx: []statechart.Effect[NotificationContext]{b.showCurrent},
					On: map[string][]statechart.Transition[NotificationContext]{
						EvNotificationClosed: {
							{
								Target: "showingNotifications",
								Guard:  b.hasNext,
								Assign: []statechart.Reducer[NotificationContext]{b.advance},
							},
							{
								Target:  "idle",
								Effects: []statechart.Effect[NotificationContext]{b.announceAllShown},
							},
						},
						EvDeleteNotification: {{
							Target: "deletingNotification",
							Guard:  b.canDelete,
							Assign: []statechart.Reducer[NotificationContext]{b.removeOptimistically},
						}},
					},
				},
				// Deletion is optimistic: the alert left the context on the
				// transition in, and a rejected remote call does not put it
				// back. Both settlements resume the loop over whatever
				// remains.
				"deletingNotification": {
					Invoke: &statechart.Invoke[NotificationContext]{
						Src: b.remove,
						OnDone: []statechart.Transition[NotificationContext]{
							{
								Target: "showingNotifications",
								Guard:  b.shouldResume,
								Assign: []statechart.Reducer[NotificationContext]{b.clearError, b.clampCursor},
							},
							{
								Target: "idle",
								Assign: []statechart.Reducer[NotificationContext]{b.clearError},
							},
						},
						OnError: []statechart.Transition[NotificationContext]{
							{
								Target:  "showingNotifications",
								Guard:   b.shouldResume,
								Assign:  []statechart.Reducer[NotificationContext]{b.clampCursor},
								Effects: []statechart.Effect[NotificationContext]{b.logRemoveFailure},
							},
							{
								Target:  "idle",
								Effects: []statechart.Effect[NotificationContext]{b.logRemoveFailure},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *notificationBuilder) setAuth(c NotificationContext, e statechart.Event) NotificationContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
		c.UserID = p.UserID
	}
	return c
}

func (b *notificationBuilder) hasSession(c NotificationContext, _ statechart.Event) bool {
	return c.AccessToken != "" && c.UserID != ""
}

func (b *notificationBuilder) requestLoad(c NotificationContext, _ statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDNotification, statechart.Event{Type: EvLoadNotifications})
}

func (b *notificationBuilder) load(ctx context.Context, c NotificationContext, _ statechart.Event) (any, error) {
	list, err := b.svc.List(ctx, c.AccessToken, c.UserID)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (b *notificationBuilder) remove(ctx context.Context, c NotificationContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(DeleteNotificationPayload)
	if !ok {
		return nil, errBadPayload
	}
	if err := b.svc.Delete(ctx, c.AccessToken, p.NotificationID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *notificationBuilder) settledNonEmpty(_ NotificationContext, e statechart.Event) bool {
	list, ok := e.Data.([]service.Notification)
	return ok && len(list) > 0
}

func (b *notificationBuilder) storeList(c NotificationContext, e statechart.Event) NotificationContext {
	if list, ok := e.Data.([]service.Notification); ok {
		c.Notifications = list
		c.Index = 0
		c.Error = ""
	}
	return c
}

func (b *notificationBuilder) storeError(c NotificationContext, e statechart.Event) NotificationContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

func (b *notificationBuilder) hasNext(c NotificationContext, _ statechart.Event) bool {
	return c.Index+1 < len(c.Notifications)
}

func (b *notificationBuilder) advance(c NotificationContext, _ statechart.Event) NotificationContext {
	c.Index++
	return c
}

func (b *notificationBuilder) resetCursor(c NotificationContext, _ statechart.Event) NotificationContext {
	c.Index = 0
	return c
}

func (b *notificationBuilder) startShowing(c NotificationContext, _ statechart.Event) NotificationContext {
	c.Showing = true
	return c
}

func (b *notificationBuilder) stopShowing(c NotificationContext, _ statechart.Event) NotificationContext {
	c.Showing = false
	return c
}

func (b *notificationBuilder) shouldResume(c NotificationContext, _ statechart.Event) bool {
	return c.Showing && len(c.Notifications) > 0
}

func (b *notificationBuilder) canDelete(c NotificationContext, e statechart.Event) bool {
	p, ok := e.Data.(DeleteNotificationPayload)
	if !ok || c.AccessToken == "" {
		return false
	}
	return slices.ContainsFunc(c.Notifications, func(n service.Notification) bool {
		return n.ID == p.NotificationID
	})
}

func (b *notificationBuilder) removeOptimistically(c NotificationContext, e statechart.Event) NotificationContext {
	p, ok := e.Data.(DeleteNotificationPayload)
	if !ok {
		return c
	}
	for i := range c.Notifications {
		if c.Notifications[i].ID == p.NotificationID {
			c.Notifications = slices.Delete(slices.Clone(c.Notifications), i, i+1)
			break
		}
	}
	return c
}

func (b *notificationBuilder) clearError(c NotificationContext, _ statechart.Event) NotificationContext {
	c.Error = ""
	return c
}

// logRemoveFailure records a rejected remote delete. The alert stays removed
// and no toast is raised; the server copy is cleanup the user never waits on.
func (b *notificationBuilder) logRemoveFailure(_ NotificationContext, e statechart.Event) {
	err, _ := e.Data.(error)
	b.log.Warn().Err(err).Msg("notification delete failed after optimistic removal")
}

func (b *notificationBuilder) clampCursor(c NotificationContext, _ statechart.Event) NotificationContext {
	if c.Index >= len(c.Notifications) {
		c.Index = 0
	}
	return c
}

// showCurrent surfaces the alert under the cursor as a snackbar. Severity is
// derived from the message text.
func (b *notificationBuilder) showCurrent(c NotificationContext, _ statechart.Event) {
	if c.Index >= len(c.Notifications) {
		return
	}
	message := c.Notifications[c.Index].Message
	b.bus.Send(context.Background(), statechart.Event{
		Type: EvOpenSnackbar,
		Data: SnackbarPayload{Message: message, Severity: MessageSeverity(message)},
	})
}

func (b *notificationBuilder) announceAllShown(NotificationContext, statechart.Event) {
	b.bus.SendToMachine(context.Background(), IDNotification, statechart.Event{Type: EvAllNotificationsShown})
}
