package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/medturn/portal/service"
)

// Login implements service.Auth.
func (b *Backend) Login(ctx context.Context, creds service.Credentials) (service.Session, error) {
	if err := b.begin(ctx, "Login"); err != nil {
		return service.Session{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[creds.Email]
	if !ok || u.Password != creds.Password {
		return service.Session{}, ErrBadCredentials
	}
	if !u.Active {
		return service.Session{}, ErrInactiveAccount
	}
	return b.issueSession(u), nil
}

// issueSession mints a token pair. Caller holds the mutex.
func (b *Backend) issueSession(u user) service.Session {
	access := b.nextID("access")
	refresh := b.nextID("refresh")
	b.accessTokens[access] = u.ID
	b.refreshTokens[refresh] = u.ID
	return service.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       u.ID,
		Role:         u.Role,
		Status:       service.StatusActive,
	}
}

// Register implements service.Auth.
func (b *Backend) Register(ctx context.Context, reg service.Registration) error {
	if err := b.begin(ctx, "Register"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[reg.Email]; exists {
		return ErrDuplicateEmail
	}
	role := service.RoleDoctor
	if reg.IsPatient {
		role = service.RolePatient
	}
	id := b.nextID("user")
	b.users[reg.Email] = user{
		ID:        id,
		Name:      reg.Name,
		Email:     reg.Email,
		Password:  reg.Password,
		Role:      role,
		Insurance: reg.Insurance,
		Active:    true,
	}
	b.profiles[id] = service.Profile{ID: id, Name: reg.Name, Email: reg.Email}
	return nil
}

// Refresh implements service.Auth. The old token pair is revoked.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (service.Session, error) {
	if err := b.begin(ctx, "Refresh"); err != nil {
		return service.Session{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.refreshTokens[refreshToken]
	if !ok {
		return service.Session{}, ErrUnknownToken
	}
	delete(b.refreshTokens, refreshToken)
	for access, owner := range b.accessTokens {
		if owner == id {
			delete(b.accessTokens, access)
		}
	}
	for _, u := range b.users {
		if u.ID == id {
			return b.issueSession(u), nil
		}
	}
	return service.Session{}, ErrUnknownToken
}

// Logout implements service.Auth.
func (b *Backend) Logout(ctx context.Context, accessToken string) error {
	if err := b.begin(ctx, "Logout"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.accessTokens[accessToken]
	if !ok {
		return ErrUnknownToken
	}
	delete(b.accessTokens, accessToken)
	for refresh, owner := range b.refreshTokens {
		if owner == id {
			delete(b.refreshTokens, refresh)
		}
	}
	return nil
}

// Load implements service.Data. Patients see their own turns; doctors see
// the turns assigned to them plus their patient roster and availability.
func (b *Backend) Load(ctx context.Context, accessToken, userID string, role service.Role) (service.DataBundle, error) {
	if err := b.begin(ctx, "Load"); err != nil {
		return service.DataBundle{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.DataBundle{}, err
	}
	bundle := service.DataBundle{Turns: b.turnsFor(userID, role)}
	if role == service.RoleDoctor {
		bundle.Patients = b.patientsOf(userID)
		bundle.Availability = b.availability[userID]
	}
	return bundle, nil
}

// List implements service.Turns.
func (b *Backend) List(ctx context.Context, accessToken, userID string, role service.Role) ([]service.Turn, error) {
	if err := b.begin(ctx, "List"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return nil, err
	}
	return b.turnsFor(userID, role), nil
}

// turnsFor collects a stable, id-ordered view. Caller holds the mutex.
func (b *Backend) turnsFor(userID string, role service.Role) []service.Turn {
	var turns []service.Turn
	for _, t := range b.turns {
		switch role {
		case service.RoleDoctor:
			if t.DoctorID == userID {
				turns = append(turns, t)
			}
		case service.RoleAdmin:
			turns = append(turns, t)
		default:
			if t.PatientID == userID {
				turns = append(turns, t)
			}
		}
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].ID < turns[j].ID })
	return turns
}

func (b *Backend) patientsOf(doctorID string) []service.Patient {
	seen := map[string]bool{}
	var patients []service.Patient
	for _, t := range b.turns {
		if t.DoctorID != doctorID || seen[t.PatientID] {
			continue
		}
		seen[t.PatientID] = true
		for _, u := range b.users {
			if u.ID == t.PatientID {
				patients = append(patients, service.Patient{ID: u.ID, Name: u.Name, Email: u.Email})
			}
		}
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].ID < patients[j].ID })
	return patients
}

// Reserve implements service.Turns.
func (b *Backend) Reserve(ctx context.Context, accessToken string, turn service.Turn) (service.Turn, error) {
	if err := b.begin(ctx, "Reserve"); err != nil {
		return service.Turn{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.Turn{}, err
	}
	turn.ID = b.nextID("turn")
	turn.Status = service.TurnPending
	b.turns[turn.ID] = turn
	return turn, nil
}

// Cancel implements service.Turns.
func (b *Backend) Cancel(ctx context.Context, accessToken, turnID string) error {
	return b.setTurnStatus(ctx, "Cancel", accessToken, turnID, service.TurnCancelled)
}

// Approve implements service.Turns.
func (b *Backend) Approve(ctx context.Context, accessToken, turnID string) error {
	return b.setTurnStatus(ctx, "Approve", accessToken, turnID, service.TurnApproved)
}

// Reject implements service.Turns.
func (b *Backend) Reject(ctx context.Context, accessToken, turnID string) error {
	return b.setTurnStatus(ctx, "Reject", accessToken, turnID, service.TurnRejected)
}

func (b *Backend) setTurnStatus(ctx context.Context, op, accessToken, turnID, status string) error {
	if err := b.begin(ctx, op); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return err
	}
	t, ok := b.turns[turnID]
	if !ok {
		return ErrUnknownTurn
	}
	t.Status = status
	b.turns[turnID] = t
	return nil
}

// Patients implements service.Doctors.
func (b *Backend) Patients(ctx context.Context, accessToken, doctorID string) ([]service.Patient, error) {
	if err := b.begin(ctx, "Patients"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return nil, err
	}
	return b.patientsOf(doctorID), nil
}

// SaveAvailability implements service.Doctors.
func (b *Backend) SaveAvailability(ctx context.Context, accessToken, doctorID string, days []service.DayAvailability) error {
	if err := b.begin(ctx, "SaveAvailability"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return err
	}
	b.availability[doctorID] = days
	return nil
}

// ForPatient implements service.Histories.
func (b *Backend) ForPatient(ctx context.Context, accessToken, patientID string) ([]service.MedicalHistory, error) {
	if err := b.begin(ctx, "ForPatient"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return nil, err
	}
	var entries []service.MedicalHistory
	for _, entry := range b.histories {
		if entry.PatientID == patientID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// AddForTurn implements service.Histories.
func (b *Backend) AddForTurn(ctx context.Context, accessToken string, entry service.MedicalHistory) (service.MedicalHistory, error) {
	if err := b.begin(ctx, "AddForTurn"); err != nil {
		return service.MedicalHistory{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.MedicalHistory{}, err
	}
	entry.ID = b.nextID("entry")
	b.histories[entry.ID] = entry
	return entry, nil
}

// Update implements service.Histories.
func (b *Backend) Update(ctx context.Context, accessToken string, entry service.MedicalHistory) (service.MedicalHistory, error) {
	if err := b.begin(ctx, "Update"); err != nil {
		return service.MedicalHistory{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.MedicalHistory{}, err
	}
	if _, ok := b.histories[entry.ID]; !ok {
		return service.MedicalHistory{}, ErrUnknownEntry
	}
	b.histories[entry.ID] = entry
	return entry, nil
}

// Delete implements service.Histories and service.Notifications; the id
// prefix disambiguates.
func (b *Backend) Delete(ctx context.Context, accessToken, id string) error {
	if err := b.begin(ctx, "Delete"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(id, "entry-"):
		if _, ok := b.histories[id]; !ok {
			return ErrUnknownEntry
		}
		delete(b.histories, id)
	case strings.HasPrefix(id, "notice-"):
		if _, ok := b.notifications[id]; !ok {
			return ErrUnknownNotice
		}
		delete(b.notifications, id)
	default:
		// Storage delete: drop the attachment of a turn.
		t, ok := b.turns[id]
		if !ok {
			return ErrUnknownTurn
		}
		delete(b.files, id)
		t.FileURL = ""
		b.turns[id] = t
	}
	return nil
}

// Notifications implements service.Notifications.List.
func (b *Backend) Notifications(ctx context.Context, accessToken, userID string) ([]service.Notification, error) {
	if err := b.begin(ctx, "Notifications"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return nil, err
	}
	var list []service.Notification
	for _, n := range b.notifications {
		if n.UserID == userID {
			list = append(list, n)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Save implements service.Profiles.
func (b *Backend) Save(ctx context.Context, accessToken string, profile service.Profile) (service.Profile, error) {
	if err := b.begin(ctx, "Save"); err != nil {
		return service.Profile{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.Profile{}, err
	}
	b.profiles[profile.ID] = profile
	return profile, nil
}

// UpdateProfile implements service.Profiles.Update.
func (b *Backend) UpdateProfile(ctx context.Context, accessToken string, profile service.Profile) (service.Profile, error) {
	if err := b.begin(ctx, "UpdateProfile"); err != nil {
		return service.Profile{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return service.Profile{}, err
	}
	stored, ok := b.profiles[profile.ID]
	if !ok {
		stored = service.Profile{ID: profile.ID}
	}
	if profile.Name != "" {
		stored.Name = profile.Name
	}
	if profile.Email != "" {
		stored.Email = profile.Email
	}
	if profile.Phone != "" {
		stored.Phone = profile.Phone
	}
	if profile.Address != "" {
		stored.Address = profile.Address
	}
	b.profiles[profile.ID] = stored
	return stored, nil
}

// Deactivate implements service.Profiles.
func (b *Backend) Deactivate(ctx context.Context, accessToken, userID string) error {
	if err := b.begin(ctx, "Deactivate"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return err
	}
	for email, u := range b.users {
		if u.ID == userID {
			u.Active = false
			b.users[email] = u
		}
	}
	return nil
}

// NotificationsAPI adapts Backend to service.Notifications; List collides
// with the turn listing on the base type.
type NotificationsAPI struct{ *Backend }

func (a NotificationsAPI) List(ctx context.Context, accessToken, userID string) ([]service.Notification, error) {
	return a.Backend.Notifications(ctx, accessToken, userID)
}

// ProfilesAPI adapts Backend to service.Profiles; Update collides with the
// history update on the base type.
type ProfilesAPI struct{ *Backend }

func (a ProfilesAPI) Update(ctx context.Context, accessToken string, profile service.Profile) (service.Profile, error) {
	return a.Backend.UpdateProfile(ctx, accessToken, profile)
}

// Upload implements service.Storage.
func (b *Backend) Upload(ctx context.Context, accessToken, turnID, filename string, data []byte) (string, error) {
	if err := b.begin(ctx, "Upload"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.userByToken(accessToken); err != nil {
		return "", err
	}
	t, ok := b.turns[turnID]
	if !ok {
		return "", ErrUnknownTurn
	}
	url := fmt.Sprintf("https://files.local/%s/%s", turnID, filename)
	b.files[turnID] = url
	t.FileURL = url
	b.turns[turnID] = t
	return url, nil
}
