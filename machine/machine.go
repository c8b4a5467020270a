// Package machine holds the portal's domain state machines: declarative
// configurations over the statechart engine, one per concern. Each machine
// owns a private context record and communicates with the others exclusively
// through the orchestrator bus; cross-machine reads happen via snapshots.
package machine

// Machine identifiers, fixed at process start. The UI machine is the bus's
// default send target.
const (
	IDAuth         = "auth"
	IDUI           = "ui"
	IDData         = "data"
	IDTurn         = "turn"
	IDDoctor       = "doctor"
	IDHistory      = "history"
	IDNotification = "notification"
	IDProfile      = "profile"
	IDFiles        = "files"
)

// AllIDs lists every machine the portal runs.
var AllIDs = []string{
	IDAuth, IDUI, IDData, IDTurn, IDDoctor,
	IDHistory, IDNotification, IDProfile, IDFiles,
}

// Snackbar severities.
const (
	SeveritySuccess = "success"
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Events returns the published event-type vocabulary for a machine id, used
// for documentation and static validation of transition tables. Unknown ids
// return nil.
func Events(id string) []string {
	switch id {
	case IDAuth:
		return authEvents
	case IDUI:
		return uiEvents
	case IDData:
		return dataEvents
	case IDTurn:
		return turnEvents
	case IDDoctor:
		return doctorEvents
	case IDHistory:
		return historyEvents
	case IDNotification:
		return notificationEvents
	case IDProfile:
		return profileEvents
	case IDFiles:
		return filesEvents
	}
	return nil
}
