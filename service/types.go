package service

// Role discriminates portal users.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// Session is the persisted authentication record. Presence of both tokens is
// necessary but not sufficient for an authenticated session; Status is
// checked too.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Role         Role
	Status       string
}

// StatusActive is the only session status accepted at startup.
const StatusActive = "ACTIVE"

// Credentials is the login input.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the sign-up input.
type Registration struct {
	Name      string
	Email     string
	Password  string
	IsPatient bool
	Insurance string
}

// Turn is one appointment slot, reserved or available.
type Turn struct {
	ID        string
	PatientID string
	DoctorID  string
	Date      string
	Time      string
	Status    string
	FileURL   string
}

// Turn statuses as the scheduling service reports them.
const (
	TurnPending   = "PENDING"
	TurnApproved  = "APPROVED"
	TurnRejected  = "REJECTED"
	TurnCancelled = "CANCELLED"
)

// Patient is the doctor-facing view of a patient.
type Patient struct {
	ID    string
	Name  string
	Email string
}

// DayAvailability is one weekday's working slots in server form: Day is one
// of the seven canonical upper-case names (MONDAY..SUNDAY).
type DayAvailability struct {
	Day     string
	Slots   []string
	Enabled bool
}

// MedicalHistory is one record in a patient's medical history.
type MedicalHistory struct {
	ID          string
	PatientID   string
	TurnID      string
	Description string
	Date        string
}

// Notification is a server-origin alert for one user.
type Notification struct {
	ID      string
	UserID  string
	Message string
}

// Profile is a user's editable profile record.
type Profile struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
}

// DataBundle is the reference data the data machine loads in one round trip.
// Which fields are populated depends on the session role.
type DataBundle struct {
	Turns        []Turn
	Patients     []Patient
	Availability []DayAvailability
}
