package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"zentoso/backend/internal/catalog"
	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/pricing"
	"zentoso/backend/internal/ratelimit"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/validation"
	"zentoso/backend/internal/wizard"
)

// SubmissionFailedMessage is the only text shown to the customer when a quote
// could not be delivered.
const SubmissionFailedMessage = "送信に失敗しました。時間をおいて再度お試しください。"

var (
	ErrNotFound           = errors.New("session not found")
	ErrNotReady           = errors.New("quote is not ready to submit")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrSubmissionFailed   = errors.New("submission failed")
	ErrForbidden          = errors.New("operator role required")
	ErrIdentityExpired    = errors.New("line login expired, reauthenticate the session")
	ErrIdentityMismatch   = errors.New("identity does not own this session")
)

// RateLimitError rejects a submission inside the cooldown window.
type RateLimitError struct {
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (%d秒)", validation.MessageRateLimit, e.Remaining)
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Sender delivers a finished quote. webhook.Client satisfies it.
type Sender interface {
	Configured() bool
	Send(ctx context.Context, payload domain.SubmissionPayload) (domain.SubmissionResponse, error)
}

type Options struct {
	Catalog    *catalog.Catalog
	Validator  *validation.Validator
	Cooldown   *ratelimit.Cooldown
	Sender     Sender
	Quotes     store.QuoteLog
	SessionTTL time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

type Service struct {
	catalog  *catalog.Catalog
	engine   *pricing.Engine
	machine  *wizard.Machine
	validate *validation.Validator
	cooldown *ratelimit.Cooldown
	sender   Sender
	quotes   store.QuoteLog
	logger   *zap.Logger
	now      func() time.Time

	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu         sync.Mutex
	id         string
	identity   identity.Identity
	state      wizard.State
	submitting bool
	last       *domain.SubmissionSummary
	touchedAt  time.Time
}

func New(opts Options) *Service {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Validator == nil {
		opts.Validator = validation.New(opts.Now)
	}
	if opts.Cooldown == nil {
		opts.Cooldown = ratelimit.NewCooldown(nil, nil, ratelimit.DefaultWindow, "wizard:")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}

	return &Service{
		catalog:  opts.Catalog,
		engine:   pricing.NewEngine(opts.Catalog),
		machine:  wizard.NewMachine(opts.Catalog, opts.Validator),
		validate: opts.Validator,
		cooldown: opts.Cooldown,
		sender:   opts.Sender,
		quotes:   opts.Quotes,
		logger:   opts.Logger,
		now:      opts.Now,
		ttl:      opts.SessionTTL,
		sessions: make(map[string]*session),
	}
}

func (s *Service) Catalog() domain.CatalogResponse {
	return s.catalog.Response()
}

// ListQuotes exposes the intake log to operators.
func (s *Service) ListQuotes(ctx context.Context, limit int) ([]domain.QuoteRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "operator") {
		return nil, ErrForbidden
	}
	if s.quotes == nil {
		return []domain.QuoteRecord{}, nil
	}
	return s.quotes.ListQuotes(ctx, limit)
}
