package machine

import (
	"context"
	"errors"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/statechart"
)

// errBadPayload settles an invoke that was triggered with the wrong payload
// type. It indicates a wiring bug, not a backend failure.
var errBadPayload = errors.New("unexpected event payload")

// snack surfaces a fixed transient message through the UI machine.
func snack[C statechart.Cloneable[C]](bus *orchestrator.Bus, message, severity string) statechart.Effect[C] {
	return func(C, statechart.Event) {
		bus.Send(context.Background(), statechart.Event{
			Type: EvOpenSnackbar,
			Data: SnackbarPayload{Message: message, Severity: severity},
		})
	}
}

// snackFailure surfaces the raw error message of a failed effect as a toast.
func snackFailure[C statechart.Cloneable[C]](bus *orchestrator.Bus) statechart.Effect[C] {
	return func(_ C, e statechart.Event) {
		message := "error inesperado"
		if err, ok := e.Data.(error); ok && err != nil {
			message = err.Error()
		}
		bus.Send(context.Background(), statechart.Event{
			Type: EvOpenSnackbar,
			Data: SnackbarPayload{Message: message, Severity: SeverityError},
		})
	}
}

// sendTo emits a fixed event to another machine after the local transition
// commits.
func sendTo[C statechart.Cloneable[C]](bus *orchestrator.Bus, id, eventType string, data any) statechart.Effect[C] {
	return func(C, statechart.Event) {
		bus.SendToMachine(context.Background(), id, statechart.Event{Type: eventType, Data: data})
	}
}

// navigate asks the UI machine to change route.
func navigate[C statechart.Cloneable[C]](bus *orchestrator.Bus, to string) statechart.Effect[C] {
	return func(C, statechart.Event) {
		bus.Send(context.Background(), statechart.Event{Type: EvNavigate, Data: NavigatePayload{To: to}})
	}
}
