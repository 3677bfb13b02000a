// Package fiberstore adapts the fiber session middleware to the auth
// SessionStore contract.
package fiberstore

import (
	"github.com/gofiber/fiber/v2/middleware/session"
)

// Store wraps one fiber session. Mutations are buffered by the middleware;
// call Save once the request handler is done.
type Store struct {
	sess *session.Session
}

// New wraps the given fiber session.
func New(sess *session.Session) *Store {
	return &Store{sess: sess}
}

func (s *Store) Get(key string) (string, bool) {
	raw := s.sess.Get(key)
	if raw == nil {
		return "", false
	}

	value, ok := raw.(string)
	return value, ok
}

func (s *Store) Set(key, value string) {
	s.sess.Set(key, value)
}

func (s *Store) Has(key string) bool {
	return s.sess.Get(key) != nil
}

func (s *Store) Remove(key string) {
	s.sess.Delete(key)
}

func (s *Store) Destroy() error {
	return s.sess.Destroy()
}

// Save flushes buffered mutations to the session backend.
func (s *Store) Save() error {
	return s.sess.Save()
}
