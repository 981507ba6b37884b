package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/xid"
)

const maxListLimit = 500

type Store struct {
	mu              sync.RWMutex
	quotes          []domain.QuoteRecord
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{usersByUsername: make(map[string]domain.UserAccount)}
}

func (s *Store) AppendQuote(_ context.Context, record domain.QuoteRecord) (*domain.QuoteRecord, error) {
	if strings.TrimSpace(record.Name) == "" && strings.TrimSpace(record.LineUserID) == "" {
		return nil, store.ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = xid.New("quote")
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, record)
	out := record
	return &out, nil
}

func (s *Store) ListQuotes(_ context.Context, limit int) ([]domain.QuoteRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QuoteRecord, 0, min(limit, len(s.quotes)))
	for i := len(s.quotes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.quotes[i])
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
