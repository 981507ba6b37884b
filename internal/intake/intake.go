// Package intake receives finished quotes and fans them out to the shop's
// channels: the quote log, email and LINE.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/notify"
	"zentoso/backend/internal/ratelimit"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/validation"
)

const (
	MessageReceived  = "お見積もりを受け付けました"
	MessageMalformed = "リクエストの形式が正しくありません"
	MessageIdentity  = "ユーザー認証に失敗しました"
)

var (
	ErrMalformed = errors.New("malformed submission")
	ErrIdentity  = errors.New("identity verification failed")
	ErrCooldown  = errors.New("submission cooldown active")
)

type Pusher interface {
	Push(ctx context.Context, to string, text string) error
}

type Options struct {
	Quotes   store.QuoteLog
	Mailer   notify.Mailer
	Line     Pusher
	AdminTo  string
	Verifier identity.Verifier
	Cooldown *ratelimit.Cooldown
	Logger   *zap.Logger
	Now      func() time.Time
}

type Service struct {
	quotes   store.QuoteLog
	mailer   notify.Mailer
	line     Pusher
	adminTo  string
	verifier identity.Verifier
	cooldown *ratelimit.Cooldown
	logger   *zap.Logger
	now      func() time.Time
}

// New wires the channels. A nil Mailer, Line or Quotes disables that channel;
// a nil Verifier accepts the reported user id as is.
func New(opts Options) *Service {
	if opts.Cooldown == nil {
		opts.Cooldown = ratelimit.NewCooldown(nil, nil, ratelimit.DefaultWindow, "intake:")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		quotes:   opts.Quotes,
		mailer:   opts.Mailer,
		line:     opts.Line,
		adminTo:  strings.TrimSpace(opts.AdminTo),
		verifier: opts.Verifier,
		cooldown: opts.Cooldown,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Receive parses raw as JSON whatever content type it arrived with. Once the
// request is parsed and accepted the response reports success, and individual
// channel failures are listed in results.errors.
func (s *Service) Receive(ctx context.Context, raw []byte) (domain.SubmissionResponse, error) {
	var payload domain.SubmissionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.SubmissionResponse{Success: false, Message: MessageMalformed}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(payload.Customer.Name) == "" || strings.TrimSpace(payload.LineUserID) == "" {
		return domain.SubmissionResponse{Success: false, Message: MessageMalformed}, fmt.Errorf("%w: missing customer or user id", ErrMalformed)
	}

	if s.verifier != nil {
		who, err := s.verifier.Verify(ctx, payload.LiffIDToken)
		if err != nil || who.UserID != payload.LineUserID {
			s.logger.Warn("intake identity rejected", zap.String("line_user_id", payload.LineUserID), zap.Error(err))
			return domain.SubmissionResponse{Success: false, Message: MessageIdentity}, ErrIdentity
		}
	}

	allowed, err := s.cooldown.Check(ctx, payload.LineUserID)
	if err != nil {
		s.logger.Warn("intake cooldown check failed", zap.Error(err))
		allowed = true
	}
	if !allowed {
		remaining, _ := s.cooldown.Remaining(ctx, payload.LineUserID)
		return domain.SubmissionResponse{
			Success: false,
			Message: fmt.Sprintf("%s (%d秒)", validation.MessageRateLimit, remaining),
		}, ErrCooldown
	}

	payload.Customer = validation.SanitizeContact(payload.Customer)
	results := s.dispatch(ctx, payload)

	if err := s.cooldown.Record(ctx, payload.LineUserID); err != nil {
		s.logger.Warn("intake cooldown record failed", zap.Error(err))
	}

	s.logger.Info("quote received",
		zap.String("line_user_id", payload.LineUserID),
		zap.Int64("total_price", payload.Quote.TotalPrice),
		zap.Strings("channel_errors", results.Errors),
	)
	return domain.SubmissionResponse{Success: true, Message: MessageReceived, Results: &results}, nil
}

func (s *Service) dispatch(ctx context.Context, payload domain.SubmissionPayload) domain.ChannelResults {
	results := domain.ChannelResults{Errors: []string{}}
	fail := func(channel string, err error) {
		results.Errors = append(results.Errors, fmt.Sprintf("%s: %v", channel, err))
	}

	if s.quotes == nil {
		fail("spreadsheet", errors.New("not configured"))
	} else if _, err := s.quotes.AppendQuote(ctx, RecordFor(payload, s.now())); err != nil {
		fail("spreadsheet", err)
	} else {
		results.Spreadsheet = true
	}

	if s.mailer == nil {
		fail("email", notify.ErrMailNotConfigured)
	} else if body, err := notify.EmailBody(payload); err != nil {
		fail("email", err)
	} else if err := s.mailer.Send(ctx, body); err != nil {
		fail("email", err)
	} else {
		results.Email = true
	}

	switch {
	case s.line == nil || s.adminTo == "":
		fail("line_admin", notify.ErrLineNotConfigured)
	default:
		if err := s.push(ctx, s.adminTo, notify.AdminMessage, payload); err != nil {
			fail("line_admin", err)
		} else {
			results.LineAdmin = true
		}
	}

	switch {
	case s.line == nil:
		fail("line_user", notify.ErrLineNotConfigured)
	case payload.LineUserID == identity.MockUserID:
		fail("line_user", errors.New("skipped for local identity"))
	default:
		if err := s.push(ctx, payload.LineUserID, notify.CustomerMessage, payload); err != nil {
			fail("line_user", err)
		} else {
			results.LineUser = true
		}
	}

	return results
}

func (s *Service) push(ctx context.Context, to string, render func(domain.SubmissionPayload) (string, error), payload domain.SubmissionPayload) error {
	text, err := render(payload)
	if err != nil {
		return err
	}
	return s.line.Push(ctx, to, text)
}

// RecordFor flattens a payload into one quote log row.
func RecordFor(payload domain.SubmissionPayload, at time.Time) domain.QuoteRecord {
	names := make([]string, 0, len(payload.Quote.Options))
	for _, opt := range payload.Quote.Options {
		names = append(names, opt.Name)
	}
	c := payload.Customer
	inquiryType := c.InquiryType
	if inquiryType != domain.InquiryVisit {
		inquiryType = domain.InquiryOnly
	}
	return domain.QuoteRecord{
		ReceivedAt:      at.UTC(),
		LineUserID:      payload.LineUserID,
		Name:            c.Name,
		Furigana:        c.Furigana,
		Email:           c.Email,
		Phone:           c.Phone,
		TotalPrice:      payload.Quote.TotalPrice,
		VehicleName:     payload.Quote.Vehicle.Name,
		PaintName:       payload.Quote.Paint.Name,
		Options:         strings.Join(names, ", "),
		InquiryType:     inquiryType,
		PreferredVisit1: visitCell(c.PreferredDate1, c.PreferredTime1),
		PreferredVisit2: visitCell(c.PreferredDate2, c.PreferredTime2),
		PreferredVisit3: visitCell(c.PreferredDate3, c.PreferredTime3),
		Inquiry:         c.Inquiry,
	}
}

func visitCell(date string, slot string) string {
	if date == "" && slot == "" {
		return ""
	}
	if date == "" {
		date = "日付未指定"
	}
	if slot == "" {
		slot = "時間未指定"
	}
	return date + " " + slot
}
