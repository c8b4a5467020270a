package machine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// Services groups the backend contracts the machines depend on.
type Services struct {
	Auth          service.Auth
	Sessions      service.SessionStore
	Data          service.Data
	Turns         service.Turns
	Doctors       service.Doctors
	Histories     service.Histories
	Notifications service.Notifications
	Profiles      service.Profiles
	Storage       service.Storage
}

// Options tunes runtime behavior of the wired machines.
type Options struct {
	// SnackbarAutoDismiss is how long a snackbar stays open before the UI
	// machine times it out. Zero defaults to four seconds.
	SnackbarAutoDismiss time.Duration
}

// Wire builds the orchestrator bus, registers all nine portal machines and
// starts them. ctx bounds every invoked effect the machines launch.
func Wire(ctx context.Context, svcs Services, opts Options, log zerolog.Logger) (*orchestrator.Bus, error) {
	if opts.SnackbarAutoDismiss <= 0 {
		opts.SnackbarAutoDismiss = 4 * time.Second
	}

	bus := orchestrator.New(IDUI, log)

	actors := []interface {
		ID() string
		Dispatch(ctx context.Context, e statechart.Event) <-chan struct{}
		Snapshot() statechart.Snapshot
		Start(ctx context.Context) error
	}{
		NewAuth(bus, svcs.Auth, svcs.Sessions, log),
		NewUI(bus, opts.SnackbarAutoDismiss, log),
		NewData(bus, svcs.Data, log),
		NewTurn(bus, svcs.Turns, log),
		NewDoctor(bus, svcs.Doctors, svcs.Histories, log),
		NewHistory(bus, svcs.Histories, log),
		NewNotification(bus, svcs.Notifications, log),
		NewProfile(bus, svcs.Profiles, log),
		NewFiles(bus, svcs.Storage, log),
	}
	for _, a := range actors {
		bus.RegisterMachine(a.ID(), a)
	}
	// Registration precedes start so entry effects can reach every sibling.
	for _, a := range actors {
		if err := a.Start(ctx); err != nil {
			return nil, err
		}
	}
	return bus, nil
}
