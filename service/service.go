// Package service declares the contracts the portal core consumes from the
// excluded service and storage layers. Invoked effects call these interfaces;
// the core never talks HTTP itself. Implementations must return errors with
// human-readable messages, since effect failures surface verbatim as UI
// toasts.
package service

import "context"

// Auth is the authentication service.
type Auth interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Register(ctx context.Context, reg Registration) error
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// SessionStore is the persisted-session layer (browser local storage in the
// original deployment). Load reports whether a session record exists.
type SessionStore interface {
	Load() (Session, bool)
	Save(Session) error
	Clear() error
}

// Data loads the role-dependent reference bundle in one call.
type Data interface {
	Load(ctx context.Context, accessToken, userID string, role Role) (DataBundle, error)
}

// Turns is the appointment-scheduling service.
type Turns interface {
	List(ctx context.Context, accessToken, userID string, role Role) ([]Turn, error)
	Reserve(ctx context.Context, accessToken string, turn Turn) (Turn, error)
	Cancel(ctx context.Context, accessToken, turnID string) error
	Approve(ctx context.Context, accessToken, turnID string) error
	Reject(ctx context.Context, accessToken, turnID string) error
}

// Doctors is the doctor-workspace service.
type Doctors interface {
	Patients(ctx context.Context, accessToken, doctorID string) ([]Patient, error)
	SaveAvailability(ctx context.Context, accessToken, doctorID string, days []DayAvailability) error
}

// Histories is the medical-history service.
type Histories interface {
	ForPatient(ctx context.Context, accessToken, patientID string) ([]MedicalHistory, error)
	AddForTurn(ctx context.Context, accessToken string, entry MedicalHistory) (MedicalHistory, error)
	Update(ctx context.Context, accessToken string, entry MedicalHistory) (MedicalHistory, error)
	Delete(ctx context.Context, accessToken, entryID string) error
}

// Notifications lists and deletes server-origin alerts.
type Notifications interface {
	List(ctx context.Context, accessToken, userID string) ([]Notification, error)
	Delete(ctx context.Context, accessToken, notificationID string) error
}

// Profiles manages the user profile record.
type Profiles interface {
	Save(ctx context.Context, accessToken string, profile Profile) (Profile, error)
	Update(ctx context.Context, accessToken string, profile Profile) (Profile, error)
	Deactivate(ctx context.Context, accessToken, userID string) error
}

// Storage uploads and deletes turn attachments, returning the public URL on
// upload.
type Storage interface {
	Upload(ctx context.Context, accessToken, turnID, filename string, data []byte) (string, error)
	Delete(ctx context.Context, accessToken, turnID string) error
}
