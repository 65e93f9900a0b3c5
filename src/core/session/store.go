package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCapacity = 10000

// ErrNotFound is returned for unknown or evicted session IDs.
var ErrNotFound = errors.New("session not found")

// Store keeps the most recently used sessions. The oldest are evicted once capacity is reached.
type Store struct {
	cache *lru.Cache[string, *Session]
}

func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, *Session](capacity)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// Create starts a session awaiting a job description.
func (s *Store) Create() *Session {
	sess := New(uuid.New().String())
	s.cache.Add(sess.ID, sess)
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) Len() int {
	return s.cache.Len()
}
