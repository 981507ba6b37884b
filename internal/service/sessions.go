package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/wizard"
	"zentoso/backend/internal/xid"
)

func (s *Service) CreateSession(ctx context.Context, id identity.Identity) (domain.WizardView, error) {
	sess := &session{
		id:        xid.New("wiz"),
		identity:  id,
		state:     wizard.NewState(),
		touchedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("wizard session created", zap.String("session_id", sess.id), zap.Bool("mock_identity", identity.IsMock(id)))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(ctx, sess), nil
}

func (s *Service) View(ctx context.Context, sessionID string) (domain.WizardView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return domain.WizardView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.now()
	return s.view(ctx, sess), nil
}

// Reauthenticate swaps in a fresh ID token for the same LINE user. The wizard
// state is kept.
func (s *Service) Reauthenticate(ctx context.Context, sessionID string, who identity.Identity) (domain.WizardView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return domain.WizardView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.now()

	if sess.submitting {
		return s.view(ctx, sess), ErrSubmissionInFlight
	}
	if who.UserID != sess.identity.UserID {
		s.logger.Warn("session reauthentication rejected", zap.String("session_id", sess.id), zap.String("line_user_id", who.UserID))
		return domain.WizardView{}, ErrIdentityMismatch
	}
	sess.identity = who
	return s.view(ctx, sess), nil
}

// Apply runs one user action. Errors from the wizard are returned wrapped and
// leave the session as it was.
func (s *Service) Apply(ctx context.Context, sessionID string, req domain.ActionRequest) (domain.WizardView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return domain.WizardView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.now()

	if sess.submitting {
		return s.view(ctx, sess), ErrSubmissionInFlight
	}

	action := toWizardAction(req)
	if action.Type == wizard.ActionSubmissionSucceeded {
		return s.view(ctx, sess), fmt.Errorf("%w: %q", wizard.ErrUnknownAction, req.Type)
	}

	next, err := s.machine.Apply(sess.state, action)
	if err != nil {
		return s.view(ctx, sess), err
	}
	sess.state = next
	if action.Type == wizard.ActionReset {
		sess.last = nil
	}
	return s.view(ctx, sess), nil
}

// PruneSessions drops sessions idle for longer than the ttl.
func (s *Service) PruneSessions(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.touchedAt.Before(cutoff) && !sess.submitting
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper prunes idle sessions until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.PruneSessions(s.now()); removed > 0 {
				s.logger.Debug("pruned idle wizard sessions", zap.Int("removed", removed))
			}
		}
	}
}

func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// view must be called with sess.mu held.
func (s *Service) view(ctx context.Context, sess *session) domain.WizardView {
	remaining, err := s.cooldown.Remaining(ctx, sess.identity.UserID)
	if err != nil {
		s.logger.Warn("read cooldown failed", zap.String("session_id", sess.id), zap.Error(err))
	}

	state := sess.state.Clone()
	return domain.WizardView{
		SessionID:       sess.id,
		Step:            state.Step.String(),
		StepIndex:       int(state.Step),
		Selection:       state.Selection,
		Quote:           s.engine.Quote(state.Selection),
		Contact:         state.Contact,
		Errors:          state.Errors,
		Submitting:      sess.submitting,
		CooldownSeconds: remaining,
		IdentityExpired: sess.identity.Expired(s.now()),
		LastSubmission:  sess.last,
	}
}

// set_option without an explicit flag means "select"; quantity defaults to 1.
func toWizardAction(req domain.ActionRequest) wizard.Action {
	action := wizard.Action{
		Type:      wizard.ActionType(req.Type),
		VehicleID: req.VehicleID,
		FinishID:  req.FinishID,
		OptionID:  req.OptionID,
		Selected:  true,
		Quantity:  1,
		Field:     req.Field,
		Value:     req.Value,
	}
	if req.Selected != nil {
		action.Selected = *req.Selected
	}
	if req.Quantity != nil {
		action.Quantity = *req.Quantity
	}
	return action
}
