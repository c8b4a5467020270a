// Package fake provides deterministic in-memory implementations of the
// portal service contracts. Tests and the demo command share them; failures
// and latency are injectable per operation.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medturn/portal/service"
)

// Errors returned by the fake backend on invalid input.
var (
	ErrBadCredentials  = errors.New("credenciales inválidas")
	ErrDuplicateEmail  = errors.New("el email ya está registrado")
	ErrUnknownToken    = errors.New("token desconocido")
	ErrUnknownTurn     = errors.New("turno inexistente")
	ErrUnknownEntry    = errors.New("registro inexistente")
	ErrUnknownNotice   = errors.New("notificación inexistente")
	ErrInactiveAccount = errors.New("cuenta desactivada")
)

type user struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      service.Role
	Insurance string
	Active    bool
}

// Backend is one in-memory instance of every portal service. The zero value
// is not usable; create with NewBackend.
type Backend struct {
	mu sync.Mutex

	// Latency is an artificial delay applied to every operation.
	Latency time.Duration

	seq           int
	users         map[string]user   // keyed by email
	accessTokens  map[string]string // access token -> user id
	refreshTokens map[string]string // refresh token -> user id
	turns         map[string]service.Turn
	availability  map[string][]service.DayAvailability // doctor id -> week
	histories     map[string]service.MedicalHistory
	notifications map[string]service.Notification
	profiles      map[string]service.Profile
	files         map[string]string // turn id -> url

	failures map[string]error
	calls    map[string]int
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		users:         map[string]user{},
		accessTokens:  map[string]string{},
		refreshTokens: map[string]string{},
		turns:         map[string]service.Turn{},
		availability:  map[string][]service.DayAvailability{},
		histories:     map[string]service.MedicalHistory{},
		notifications: map[string]service.Notification{},
		profiles:      map[string]service.Profile{},
		files:         map[string]string{},
		failures:      map[string]error{},
		calls:         map[string]int{},
	}
}

// FailNext makes the named operation return err exactly once.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Calls reports how many times the named operation ran, failures included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// begin applies latency, counts the call and pops a pending failure. The
// caller must not hold the mutex.
func (b *Backend) begin(ctx context.Context, op string) error {
	if b.Latency > 0 {
		select {
		case <-time.After(b.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if err, ok := b.failures[op]; ok {
		delete(b.failures, op)
		return err
	}
	return nil
}

func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%03d", prefix, b.seq)
}

// SeedUser registers a user directly, bypassing the signup flow.
func (b *Backend) SeedUser(name, email, password string, role service.Role) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID("user")
	b.users[email] = user{ID: id, Name: name, Email: email, Password: password, Role: role, Active: true}
	b.profiles[id] = service.Profile{ID: id, Name: name, Email: email}
	return id
}

// SeedTurn inserts a turn and returns its id.
func (b *Backend) SeedTurn(t service.Turn) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.ID == "" {
		t.ID = b.nextID("turn")
	}
	if t.Status == "" {
		t.Status = service.TurnPending
	}
	b.turns[t.ID] = t
	return t.ID
}

// SeedNotification inserts an alert for a user and returns its id.
func (b *Backend) SeedNotification(userID, message string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID("notice")
	b.notifications[id] = service.Notification{ID: id, UserID: userID, Message: message}
	return id
}

// SeedAvailability sets a doctor's weekly availability in server form.
func (b *Backend) SeedAvailability(doctorID string, days []service.DayAvailability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.availability[doctorID] = days
}

func (b *Backend) userByToken(accessToken string) (user, error) {
	id, ok := b.accessTokens[accessToken]
	if !ok {
		return user{}, ErrUnknownToken
	}
	for _, u := range b.users {
		if u.ID == id {
			return u, nil
		}
	}
	return user{}, ErrUnknownToken
}
