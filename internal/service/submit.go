package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/validation"
	"zentoso/backend/internal/webhook"
	"zentoso/backend/internal/wizard"
)

const skippedDeliveryMessage = "送信先が未設定のため送信をスキップしました"

// Submit sends the confirmed quote. The contact form is validated again and
// an invalid one sends the session back to contact-form. Otherwise the session
// stays at final-confirm on any error so the customer can retry without
// re-entering data. There is no
// retry and no idempotency key: a retry after a timeout may duplicate a row
// downstream.
func (s *Service) Submit(ctx context.Context, sessionID string) (domain.WizardView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return domain.WizardView{}, err
	}

	sess.mu.Lock()
	sess.touchedAt = s.now()
	if sess.state.Step != domain.StepFinalConfirm {
		view := s.view(ctx, sess)
		sess.mu.Unlock()
		return view, ErrNotReady
	}
	if sess.submitting {
		view := s.view(ctx, sess)
		sess.mu.Unlock()
		return view, ErrSubmissionInFlight
	}
	// Intake verifies the token again, so an expired one cannot be delivered.
	if sess.identity.Expired(s.now()) {
		view := s.view(ctx, sess)
		sess.mu.Unlock()
		return view, ErrIdentityExpired
	}
	// Visit dates can lapse while the customer sits on the confirm page.
	if errs := s.validate.ValidateContact(sess.state.Contact); errs != nil {
		sess.state.Step = domain.StepContactForm
		sess.state.Errors = errs
		view := s.view(ctx, sess)
		sess.mu.Unlock()
		return view, ErrNotReady
	}
	sess.submitting = true
	snapshot := sess.state.Clone()
	who := sess.identity
	sess.mu.Unlock()

	summary, sendErr := s.deliver(ctx, who.UserID, who.IDToken, snapshot)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.submitting = false
	if sendErr != nil {
		return s.view(ctx, sess), sendErr
	}

	next, err := s.machine.Apply(sess.state, wizard.Action{Type: wizard.ActionSubmissionSucceeded})
	if err != nil {
		return s.view(ctx, sess), err
	}
	sess.state = next
	sess.last = &summary
	return s.view(ctx, sess), nil
}

func (s *Service) deliver(ctx context.Context, userID string, idToken string, state wizard.State) (domain.SubmissionSummary, error) {
	allowed, err := s.cooldown.Check(ctx, userID)
	if err != nil {
		s.logger.Warn("cooldown check failed, allowing submission", zap.Error(err))
		allowed = true
	}
	if !allowed {
		remaining, _ := s.cooldown.Remaining(ctx, userID)
		return domain.SubmissionSummary{}, &RateLimitError{Remaining: remaining}
	}

	payload, err := s.buildPayload(userID, idToken, state)
	if err != nil {
		return domain.SubmissionSummary{}, err
	}

	// Local mode without an endpoint goes straight to complete and does not
	// start a cooldown.
	if s.sender == nil || !s.sender.Configured() {
		s.logger.Info("no webhook endpoint configured, skipping delivery")
		return domain.SubmissionSummary{Delivered: false, Message: skippedDeliveryMessage, SubmittedAt: s.now().UTC()}, nil
	}

	resp, err := s.sender.Send(ctx, payload)
	if err != nil {
		s.logger.Warn("quote submission failed", zap.Error(err))
		return domain.SubmissionSummary{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if err := s.cooldown.Record(ctx, userID); err != nil {
		s.logger.Warn("record cooldown failed", zap.Error(err))
	}

	failed := webhook.FailedChannels(resp.Results)
	if len(failed) > 0 {
		s.logger.Warn("quote delivered with channel failures", zap.Strings("channels", failed))
	}
	return domain.SubmissionSummary{
		Delivered:      true,
		Message:        resp.Message,
		PartialFailure: len(failed) > 0,
		FailedChannels: failed,
		SubmittedAt:    s.now().UTC(),
	}, nil
}

func (s *Service) buildPayload(userID string, idToken string, state wizard.State) (domain.SubmissionPayload, error) {
	vehicle, ok := s.catalog.Vehicle(state.Selection.VehicleID)
	if !ok {
		return domain.SubmissionPayload{}, fmt.Errorf("%w: %w", ErrNotReady, wizard.ErrUnknownVehicle)
	}
	finish, ok := s.catalog.Finish(state.Selection.FinishID)
	if !ok {
		return domain.SubmissionPayload{}, fmt.Errorf("%w: %w", ErrNotReady, wizard.ErrUnknownFinish)
	}

	quote := s.engine.Quote(state.Selection)
	options := make([]domain.SubmissionOption, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		options = append(options, domain.SubmissionOption{
			Name:     validation.Sanitize(line.Name),
			Price:    line.LineTotal,
			Quantity: line.Quantity,
		})
	}

	return domain.SubmissionPayload{
		Customer: validation.SanitizeContact(state.Contact),
		Quote: domain.SubmissionQuote{
			Vehicle:    vehicle,
			Paint:      finish,
			Options:    options,
			TotalPrice: quote.Total,
		},
		LineUserID:  userID,
		LiffIDToken: idToken,
	}, nil
}

// IsRateLimited unwraps a RateLimitError.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
