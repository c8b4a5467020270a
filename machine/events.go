package machine

import "github.com/medturn/portal/service"

// Event types and payloads, grouped by consuming machine. One discriminated
// event per user action or cross-machine signal; payloads are immutable once
// dispatched.

// Cross-cutting signals.
const (
	EvSetAuth    = "SET_AUTH"
	EvLogout     = "LOGOUT"
	EvNavigate   = "NAVIGATE"
	EvDataLoaded = "DATA_LOADED"
	EvLoadData   = "LOAD_DATA"
)

// SetAuthPayload seeds a machine with the active session identity.
type SetAuthPayload struct {
	AccessToken string
	UserID      string
	Role        service.Role
}

// NavigatePayload is the UI route request.
type NavigatePayload struct {
	To string
}

// Auth machine.
const (
	EvUpdateForm      = "UPDATE_FORM"
	EvSetMode         = "SET_MODE"
	EvSubmit          = "SUBMIT"
	EvHandleAuthError = "HANDLE_AUTH_ERROR"
)

// UpdateFormPayload writes one form field.
type UpdateFormPayload struct {
	Key   string
	Value string
}

// SetModePayload switches between login and register flows.
type SetModePayload struct {
	Mode      string
	IsPatient bool
}

// AuthErrorPayload escalates a 401/403-flavored service failure to the auth
// machine. Retry is replayed with a fresh access token if the refresh
// succeeds.
type AuthErrorPayload struct {
	Retry func(accessToken string)
}

var authEvents = []string{
	EvUpdateForm, EvSetMode, EvSubmit, EvSetAuth, EvLogout, EvHandleAuthError,
}

// UI machine.
const (
	EvToggle                  = "TOGGLE"
	EvOpenSnackbar            = "OPEN_SNACKBAR"
	EvCloseSnackbar           = "CLOSE_SNACKBAR"
	EvSnackbarTimeout         = "SNACKBAR_TIMEOUT"
	EvOpenConfirmationDialog  = "OPEN_CONFIRMATION_DIALOG"
	EvCloseConfirmationDialog = "CLOSE_CONFIRMATION_DIALOG"
	EvConfirmDialog           = "CONFIRM_DIALOG"
)

// TogglePayload flips a named boolean.
type TogglePayload struct {
	Key string
}

// SnackbarPayload is a transient message with severity.
type SnackbarPayload struct {
	Message  string
	Severity string
}

// SnackbarTimeoutPayload carries the sequence number of the timer that
// fired; a stale sequence is ignored.
type SnackbarTimeoutPayload struct {
	Seq uint64
}

// Dialog action tags.
const (
	DialogApprove    = "approve"
	DialogReject     = "reject"
	DialogCancelTurn = "cancel_turn"
)

// DialogPayload identifies a pending confirmation and its subject.
type DialogPayload struct {
	Action    string
	RequestID string
}

var uiEvents = []string{
	EvToggle, EvOpenSnackbar, EvCloseSnackbar, EvSnackbarTimeout,
	EvOpenConfirmationDialog, EvCloseConfirmationDialog, EvConfirmDialog,
	EvNavigate, EvLogout,
}

// Data machine.
var dataEvents = []string{EvSetAuth, EvLoadData}

// Turn machine.
const (
	EvReserveTurn    = "RESERVE_TURN"
	EvCancelTurn     = "CANCEL_TURN"
	EvApproveTurn    = "APPROVE_TURN"
	EvRejectTurn     = "REJECT_TURN"
	EvReloadTurns    = "RELOAD_TURNS"
	EvSelectTurn     = "SELECT_TURN"
	EvUpdateTurnFile = "UPDATE_TURN_FILE"
	EvRemoveTurnFile = "REMOVE_TURN_FILE"
)

// ReserveTurnPayload requests a new appointment.
type ReserveTurnPayload struct {
	Turn service.Turn
}

// TurnActionPayload targets one turn by id (cancel/approve/reject).
type TurnActionPayload struct {
	TurnID string
}

// SelectTurnPayload marks a turn as the current selection.
type SelectTurnPayload struct {
	Turn service.Turn
}

// TurnFilePayload patches a turn's attachment URL.
type TurnFilePayload struct {
	TurnID string
	URL    string
}

var turnEvents = []string{
	EvSetAuth, EvDataLoaded, EvReserveTurn, EvCancelTurn, EvApproveTurn,
	EvRejectTurn, EvReloadTurns, EvSelectTurn, EvUpdateTurnFile, EvRemoveTurnFile,
}

// Doctor machine.
const (
	EvSelectPatient      = "SELECT_PATIENT"
	EvClearSelection     = "CLEAR_SELECTION"
	EvUpdateHistoryDraft = "UPDATE_HISTORY_DRAFT"
	EvSaveHistory        = "SAVE_HISTORY"
	EvEditAvailability   = "EDIT_AVAILABILITY"
	EvSaveAvailability   = "SAVE_AVAILABILITY"
	EvRefreshPatients    = "REFRESH_PATIENTS"
)

// SelectPatientPayload carries the chosen patient record.
type SelectPatientPayload struct {
	Patient service.Patient
}

// HistoryDraftPayload edits the draft history entry for the selected patient.
type HistoryDraftPayload struct {
	Description string
}

// EditAvailabilityPayload updates one localized weekday's slots in the edit
// buffer.
type EditAvailabilityPayload struct {
	Day     string
	Slots   []string
	Enabled bool
}

var doctorEvents = []string{
	EvSetAuth, EvDataLoaded, EvSelectPatient, EvClearSelection,
	EvUpdateHistoryDraft, EvSaveHistory, EvEditAvailability,
	EvSaveAvailability, EvRefreshPatients,
}

// Medical-history machine.
const (
	EvLoadPatientMedicalHistory = "LOAD_PATIENT_MEDICAL_HISTORY"
	EvAddHistoryEntryForTurn    = "ADD_HISTORY_ENTRY_FOR_TURN"
	EvUpdateHistoryEntry        = "UPDATE_HISTORY_ENTRY"
	EvDeleteHistoryEntry        = "DELETE_HISTORY_ENTRY"
)

// LoadHistoryPayload requests a patient's history. The request is skipped
// when the cache already holds that patient, unless Force is set.
type LoadHistoryPayload struct {
	PatientID string
	Force     bool
}

// HistoryEntryPayload carries a history record for add/update.
type HistoryEntryPayload struct {
	Entry service.MedicalHistory
}

// DeleteHistoryPayload targets one history record.
type DeleteHistoryPayload struct {
	EntryID string
}

var historyEvents = []string{
	EvSetAuth, EvLoadPatientMedicalHistory, EvAddHistoryEntryForTurn,
	EvUpdateHistoryEntry, EvDeleteHistoryEntry,
}

// Notification machine.
const (
	EvLoadNotifications     = "LOAD_NOTIFICATIONS"
	EvDeleteNotification    = "DELETE_NOTIFICATION"
	EvNotificationClosed    = "NOTIFICATION_CLOSED"
	EvAllNotificationsShown = "ALL_NOTIFICATIONS_SHOWN"
)

// DeleteNotificationPayload targets one alert.
type DeleteNotificationPayload struct {
	NotificationID string
}

var notificationEvents = []string{
	EvSetAuth, EvLoadNotifications, EvDeleteNotification, EvNotificationClosed,
	EvAllNotificationsShown,
}

// Profile machine.
const (
	EvUpdateProfileForm = "UPDATE_PROFILE_FORM"
	EvSaveProfile       = "SAVE_PROFILE"
	EvUpdateProfile     = "UPDATE_PROFILE"
	EvDeactivateAccount = "DEACTIVATE_ACCOUNT"
)

var profileEvents = []string{
	EvSetAuth, EvUpdateProfileForm, EvSaveProfile, EvUpdateProfile, EvDeactivateAccount,
}

// Files machine.
const (
	EvUploadTurnFile = "UPLOAD_TURN_FILE"
	EvDeleteTurnFile = "DELETE_TURN_FILE"
)

// UploadFilePayload is a turn attachment upload request.
type UploadFilePayload struct {
	TurnID   string
	Filename string
	Data     []byte
}

// DeleteFilePayload removes a turn attachment.
type DeleteFilePayload struct {
	TurnID string
}

var filesEvents = []string{EvSetAuth, EvUploadTurnFile, EvDeleteTurnFile}
