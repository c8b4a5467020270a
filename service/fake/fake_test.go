package fake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/service"
	"github.com/medturn/portal/service/fake"
)

func seededBackend(t *testing.T) (*fake.Backend, service.Session) {
	t.Helper()
	b := fake.NewBackend()
	b.SeedUser("Juan Pérez", "juan@portal.test", "paciente123", service.RolePatient)
	sess, err := b.Login(context.Background(), service.Credentials{Email: "juan@portal.test", Password: "paciente123"})
	require.NoError(t, err)
	return b, sess
}

func TestLoginRejectsBadPassword(t *testing.T) {
	b := fake.NewBackend()
	b.SeedUser("Juan Pérez", "juan@portal.test", "paciente123", service.RolePatient)

	_, err := b.Login(context.Background(), service.Credentials{Email: "juan@portal.test", Password: "otra"})
	assert.ErrorIs(t, err, fake.ErrBadCredentials)
}

func TestRefreshRotatesBothTokens(t *testing.T) {
	b, sess := seededBackend(t)

	rotated, err := b.Refresh(context.Background(), sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)

	// The old pair is revoked.
	_, err = b.Refresh(context.Background(), sess.RefreshToken)
	assert.ErrorIs(t, err, fake.ErrUnknownToken)
	_, err = b.List(context.Background(), sess.AccessToken, sess.UserID, sess.Role)
	assert.ErrorIs(t, err, fake.ErrUnknownToken)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	b, _ := seededBackend(t)

	err := b.Register(context.Background(), service.Registration{
		Name:     "Otro Juan",
		Email:    "juan@portal.test",
		Password: "secreta1",
	})
	assert.ErrorIs(t, err, fake.ErrDuplicateEmail)
}

func TestFailNextIsOneShot(t *testing.T) {
	b, sess := seededBackend(t)
	boom := errors.New("boom")
	b.FailNext("List", boom)

	_, err := b.List(context.Background(), sess.AccessToken, sess.UserID, sess.Role)
	assert.ErrorIs(t, err, boom)

	_, err = b.List(context.Background(), sess.AccessToken, sess.UserID, sess.Role)
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Calls("List"))
}

func TestDeleteDispatchesOnIDPrefix(t *testing.T) {
	b, sess := seededBackend(t)
	turnID := b.SeedTurn(service.Turn{PatientID: sess.UserID, Date: "2026-09-07", Time: "10:00"})
	noticeID := b.SeedNotification(sess.UserID, "Recordatorio")
	entry, err := b.AddForTurn(context.Background(), sess.AccessToken, service.MedicalHistory{PatientID: sess.UserID, Description: "Control"})
	require.NoError(t, err)

	url, err := b.Upload(context.Background(), sess.AccessToken, turnID, "analisis.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Contains(t, url, turnID)

	require.NoError(t, b.Delete(context.Background(), sess.AccessToken, entry.ID))
	entries, err := b.ForPatient(context.Background(), sess.AccessToken, sess.UserID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, b.Delete(context.Background(), sess.AccessToken, noticeID))
	alerts, err := b.Notifications(context.Background(), sess.AccessToken, sess.UserID)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// A bare turn id drops the attachment, not the turn.
	require.NoError(t, b.Delete(context.Background(), sess.AccessToken, turnID))
	turns, err := b.List(context.Background(), sess.AccessToken, sess.UserID, sess.Role)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].FileURL)
}

func TestLatencyHonorsContextCancellation(t *testing.T) {
	b, sess := seededBackend(t)
	b.Latency = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.List(ctx, sess.AccessToken, sess.UserID, sess.Role)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("call did not return after cancellation")
	}
}

func TestSessionStoreOneShotFailures(t *testing.T) {
	store := &fake.SessionStore{}
	_, ok := store.Load()
	assert.False(t, ok)

	store.SaveErr = errors.New("disco lleno")
	assert.Error(t, store.Save(service.Session{AccessToken: "a"}))
	require.NoError(t, store.Save(service.Session{AccessToken: "a"}))

	sess, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "a", sess.AccessToken)

	store.ClearErr = errors.New("disco bloqueado")
	assert.Error(t, store.Clear())
	require.NoError(t, store.Clear())
	_, ok = store.Load()
	assert.False(t, ok)
}
