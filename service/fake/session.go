package fake

import (
	"sync"

	"github.com/medturn/portal/service"
)

// SessionStore is an in-memory service.SessionStore. The zero value is an
// empty store ready for use.
type SessionStore struct {
	mu   sync.Mutex
	sess service.Session
	ok   bool

	// SaveErr and ClearErr, when set, are returned by the next matching call.
	SaveErr  error
	ClearErr error
}

func (s *SessionStore) Load() (service.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.ok
}

func (s *SessionStore) Save(sess service.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		err := s.SaveErr
		s.SaveErr = nil
		return err
	}
	s.sess = sess
	s.ok = true
	return nil
}

func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClearErr != nil {
		err := s.ClearErr
		s.ClearErr = nil
		return err
	}
	s.sess = service.Session{}
	s.ok = false
	return nil
}
