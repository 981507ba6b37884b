package store

import (
	"context"
	"errors"

	"zentoso/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrDuplicate     = errors.New("duplicate record")
)

// QuoteLog is the append-only intake log. ListQuotes returns newest first.
type QuoteLog interface {
	AppendQuote(ctx context.Context, record domain.QuoteRecord) (*domain.QuoteRecord, error)
	ListQuotes(ctx context.Context, limit int) ([]domain.QuoteRecord, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	QuoteLog
	UserStore
}
