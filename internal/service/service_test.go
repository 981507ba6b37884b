package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zentoso/backend/internal/cache"
	"zentoso/backend/internal/catalog"
	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/ratelimit"
	"zentoso/backend/internal/store/memory"
	"zentoso/backend/internal/wizard"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type senderStub struct {
	mu         sync.Mutex
	configured bool
	resp       domain.SubmissionResponse
	err        error
	payloads   []domain.SubmissionPayload
	block      chan struct{}
}

func (s *senderStub) Configured() bool { return s.configured }

func (s *senderStub) Send(_ context.Context, payload domain.SubmissionPayload) (domain.SubmissionResponse, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.resp, s.err
}

func (s *senderStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func newTestService(sender Sender) (*Service, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	return New(Options{
		Catalog:  catalog.Default(),
		Cooldown: ratelimit.NewCooldown(cache.NewMemoryTimestampStore(), clock, ratelimit.DefaultWindow, "wizard:"),
		Sender:   sender,
		Quotes:   memory.New(),
		Now:      clock.Now,
	}), clock
}

func apply(t *testing.T, svc *Service, id string, reqs ...domain.ActionRequest) domain.WizardView {
	t.Helper()
	var view domain.WizardView
	for _, req := range reqs {
		var err error
		view, err = svc.Apply(context.Background(), id, req)
		if err != nil {
			t.Fatalf("apply %s: %v", req.Type, err)
		}
	}
	return view
}

func readySession(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	view, err := svc.CreateSession(context.Background(), identity.Identity{UserID: userID, IDToken: "tok-" + userID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	qty := uint(2)
	view = apply(t, svc, view.SessionID,
		domain.ActionRequest{Type: "select_vehicle", VehicleID: "kei"},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "select_finish", FinishID: domain.FinishPearl},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "set_option", OptionID: "wrapping_peel"},
		domain.ActionRequest{Type: "set_option", OptionID: "wheel_paint", Quantity: &qty},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "set_contact_field", Field: "name", Value: "<b>山田</b> 太郎"},
		domain.ActionRequest{Type: "set_contact_field", Field: "furigana", Value: "やまだ たろう"},
		domain.ActionRequest{Type: "set_contact_field", Field: "phone", Value: "080-1234-5678"},
		domain.ActionRequest{Type: "set_contact_field", Field: "email", Value: "taro@example.jp"},
		domain.ActionRequest{Type: "next"},
	)
	if view.Step != "final-confirm" {
		t.Fatalf("expected final-confirm, got %s (errors %v)", view.Step, view.Errors)
	}
	return view.SessionID
}

func TestViewRecomputesQuote(t *testing.T) {
	svc, _ := newTestService(nil)
	view, _ := svc.CreateSession(context.Background(), identity.Identity{UserID: "U1"})
	if view.Quote.Total != 0 || view.Step != "vehicle-select" {
		t.Fatalf("unexpected fresh view %+v", view)
	}

	view = apply(t, svc, view.SessionID,
		domain.ActionRequest{Type: "select_vehicle", VehicleID: "kei"},
		domain.ActionRequest{Type: "set_option", OptionID: "wrapping_peel"},
	)
	if view.Quote.Total != 150000 || !view.Quote.Provisional {
		t.Fatalf("expected provisional 150000, got %+v", view.Quote)
	}
}

func TestApplyUnknownSession(t *testing.T) {
	svc, _ := newTestService(nil)
	if _, err := svc.Apply(context.Background(), "wiz-missing", domain.ActionRequest{Type: "next"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyRejectsInternalAction(t *testing.T) {
	svc, _ := newTestService(nil)
	id := readySession(t, svc, "U1")
	view, err := svc.Apply(context.Background(), id, domain.ActionRequest{Type: "submission_succeeded"})
	if !errors.Is(err, wizard.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if view.Step != "final-confirm" {
		t.Fatalf("expected step unchanged, got %s", view.Step)
	}
}

func TestSubmitRequiresFinalConfirm(t *testing.T) {
	svc, _ := newTestService(&senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}})
	view, _ := svc.CreateSession(context.Background(), identity.Identity{UserID: "U1"})
	if _, err := svc.Submit(context.Background(), view.SessionID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSubmitSendsSanitizedPayloadAndCompletes(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true, Message: "受け付けました"}}
	svc, _ := newTestService(sender)
	id := readySession(t, svc, "U1")

	view, err := svc.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Step != "complete" {
		t.Fatalf("expected complete, got %s", view.Step)
	}
	if view.LastSubmission == nil || !view.LastSubmission.Delivered || view.LastSubmission.PartialFailure {
		t.Fatalf("unexpected summary %+v", view.LastSubmission)
	}
	if view.CooldownSeconds != 60 {
		t.Fatalf("expected cooldown 60, got %d", view.CooldownSeconds)
	}

	payload := sender.payloads[0]
	if payload.Customer.Name != "山田 太郎" {
		t.Fatalf("expected sanitized name, got %q", payload.Customer.Name)
	}
	if payload.LineUserID != "U1" || payload.LiffIDToken != "tok-U1" {
		t.Fatalf("unexpected identity in payload %+v", payload)
	}
	if payload.Quote.TotalPrice != 140000+50000+10000 {
		t.Fatalf("unexpected total %d", payload.Quote.TotalPrice)
	}
	if len(payload.Quote.Options) != 2 || payload.Quote.Options[1].Price != 10000 || payload.Quote.Options[1].Quantity != 2 {
		t.Fatalf("unexpected options %+v", payload.Quote.Options)
	}
	if payload.Quote.Vehicle.ID != "kei" || payload.Quote.Paint.ID != domain.FinishPearl {
		t.Fatalf("unexpected vehicle/paint %+v", payload.Quote)
	}
}

func TestSubmitFailureKeepsFinalConfirm(t *testing.T) {
	sender := &senderStub{configured: true, err: errors.New("connection reset")}
	svc, _ := newTestService(sender)
	id := readySession(t, svc, "U1")

	view, err := svc.Submit(context.Background(), id)
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if view.Step != "final-confirm" || view.Contact.Email != "taro@example.jp" {
		t.Fatalf("expected state kept for retry, got %+v", view)
	}
	if view.CooldownSeconds != 0 {
		t.Fatalf("expected no cooldown after failure, got %d", view.CooldownSeconds)
	}

	sender.err = nil
	sender.resp = domain.SubmissionResponse{Success: true}
	if view, err = svc.Submit(context.Background(), id); err != nil || view.Step != "complete" {
		t.Fatalf("expected retry to succeed, got %s %v", view.Step, err)
	}
}

func TestConfirmedContactCannotBeEdited(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}}
	svc, _ := newTestService(sender)
	id := readySession(t, svc, "U1")

	for _, req := range []domain.ActionRequest{
		{Type: "set_contact_field", Field: "name", Value: ""},
		{Type: "set_contact_field", Field: "phone", Value: "12345"},
		{Type: "select_vehicle", VehicleID: "onebox"},
	} {
		view, err := svc.Apply(context.Background(), id, req)
		if !errors.Is(err, wizard.ErrInvalidTransition) {
			t.Fatalf("%s: expected ErrInvalidTransition, got %v", req.Type, err)
		}
		if view.Step != "final-confirm" {
			t.Fatalf("%s: expected final-confirm, got %s", req.Type, view.Step)
		}
	}

	if _, err := svc.Submit(context.Background(), id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := sender.payloads[0].Customer
	if got.Name != "山田 太郎" || got.Phone != "080-1234-5678" {
		t.Fatalf("expected confirmed contact delivered, got %+v", got)
	}
}

func TestSubmitRevalidatesLapsedVisitDate(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}}
	svc, clock := newTestService(sender)
	id := readySession(t, svc, "U1")
	view := apply(t, svc, id,
		domain.ActionRequest{Type: "edit_contact"},
		domain.ActionRequest{Type: "set_contact_field", Field: "preferredDate1", Value: "2026-03-10"},
		domain.ActionRequest{Type: "next"},
	)
	if view.Step != "final-confirm" {
		t.Fatalf("expected final-confirm, got %s (errors %v)", view.Step, view.Errors)
	}

	clock.Advance(48 * time.Hour)
	view, err := svc.Submit(context.Background(), id)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if view.Step != "contact-form" || view.Errors["preferredDate1"] == "" {
		t.Fatalf("expected contact-form with date error, got %s %v", view.Step, view.Errors)
	}
	if sender.calls() != 0 {
		t.Fatalf("expected nothing delivered, got %d calls", sender.calls())
	}
}

func TestSubmitAfterTokenExpiryNeedsReauthentication(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}}
	svc, clock := newTestService(sender)
	created, err := svc.CreateSession(context.Background(), identity.Identity{UserID: "U1", IDToken: "tok-1", ExpiresAt: clock.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	id := created.SessionID
	apply(t, svc, id,
		domain.ActionRequest{Type: "select_vehicle", VehicleID: "kei"},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "select_finish", FinishID: domain.FinishSolid},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "next"},
		domain.ActionRequest{Type: "set_contact_field", Field: "name", Value: "山田 太郎"},
		domain.ActionRequest{Type: "set_contact_field", Field: "furigana", Value: "やまだ たろう"},
		domain.ActionRequest{Type: "set_contact_field", Field: "phone", Value: "080-1234-5678"},
		domain.ActionRequest{Type: "set_contact_field", Field: "email", Value: "taro@example.jp"},
		domain.ActionRequest{Type: "next"},
	)

	clock.Advance(2 * time.Hour)
	view, err := svc.Submit(context.Background(), id)
	if !errors.Is(err, ErrIdentityExpired) {
		t.Fatalf("expected ErrIdentityExpired, got %v", err)
	}
	if view.Step != "final-confirm" || !view.IdentityExpired || sender.calls() != 0 {
		t.Fatalf("expected session kept without delivery, got %+v (calls %d)", view, sender.calls())
	}

	if _, err := svc.Reauthenticate(context.Background(), id, identity.Identity{UserID: "U2", IDToken: "tok-2"}); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
	view, err = svc.Reauthenticate(context.Background(), id, identity.Identity{UserID: "U1", IDToken: "tok-3", ExpiresAt: clock.Now().Add(time.Hour)})
	if err != nil || view.IdentityExpired || view.Contact.Name != "山田 太郎" {
		t.Fatalf("expected refreshed identity with data kept, got %+v %v", view, err)
	}

	if view, err = svc.Submit(context.Background(), id); err != nil || view.Step != "complete" {
		t.Fatalf("expected submit after reauthentication, got %s %v", view.Step, err)
	}
	if got := sender.payloads[0].LiffIDToken; got != "tok-3" {
		t.Fatalf("expected fresh token delivered, got %q", got)
	}
}

func TestSubmitCooldownAcrossSessions(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}}
	svc, clock := newTestService(sender)

	if _, err := svc.Submit(context.Background(), readySession(t, svc, "U1")); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	clock.Advance(10 * time.Second)
	second := readySession(t, svc, "U1")
	view, err := svc.Submit(context.Background(), second)
	rl, ok := IsRateLimited(err)
	if !ok {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.Remaining != 50 {
		t.Fatalf("expected 50 seconds remaining, got %d", rl.Remaining)
	}
	if view.Step != "final-confirm" || sender.calls() != 1 {
		t.Fatalf("expected no delivery while cooling down, step %s calls %d", view.Step, sender.calls())
	}

	clock.Advance(51 * time.Second)
	if _, err := svc.Submit(context.Background(), second); err != nil {
		t.Fatalf("expected submit after 61s to pass, got %v", err)
	}
}

func TestSubmitPartialFailureIsReported(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{
		Success: true,
		Results: &domain.ChannelResults{Spreadsheet: true, Email: false, LineAdmin: true, LineUser: true, Errors: []string{"email: timeout"}},
	}}
	svc, _ := newTestService(sender)

	view, err := svc.Submit(context.Background(), readySession(t, svc, "U1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !view.LastSubmission.PartialFailure || len(view.LastSubmission.FailedChannels) != 1 || view.LastSubmission.FailedChannels[0] != "email" {
		t.Fatalf("unexpected summary %+v", view.LastSubmission)
	}
}

func TestSubmitWithoutEndpointSkipsNetworkAndCooldown(t *testing.T) {
	svc, _ := newTestService(&senderStub{configured: false})
	view, err := svc.Submit(context.Background(), readySession(t, svc, identity.MockUserID))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Step != "complete" || view.LastSubmission.Delivered {
		t.Fatalf("expected skipped delivery, got %+v", view.LastSubmission)
	}
	if view.CooldownSeconds != 0 {
		t.Fatalf("expected no cooldown, got %d", view.CooldownSeconds)
	}
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	sender := &senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}, block: make(chan struct{})}
	svc, _ := newTestService(sender)
	id := readySession(t, svc, "U1")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), id)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		view, _ := svc.View(context.Background(), id)
		if view.Submitting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Submit(context.Background(), id); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if _, err := svc.Apply(context.Background(), id, domain.ActionRequest{Type: "back"}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected actions blocked while submitting, got %v", err)
	}

	close(sender.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestResetAfterCompleteStartsOver(t *testing.T) {
	svc, _ := newTestService(&senderStub{configured: true, resp: domain.SubmissionResponse{Success: true}})
	id := readySession(t, svc, "U1")
	if _, err := svc.Submit(context.Background(), id); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view := apply(t, svc, id, domain.ActionRequest{Type: "reset"})
	if view.Step != "vehicle-select" || view.LastSubmission != nil || view.Contact.Name != "" {
		t.Fatalf("expected fresh wizard, got %+v", view)
	}
	if view.CooldownSeconds == 0 {
		t.Fatalf("expected cooldown to survive reset")
	}
}

func TestPruneSessionsDropsIdle(t *testing.T) {
	svc, clock := newTestService(nil)
	view, _ := svc.CreateSession(context.Background(), identity.Identity{UserID: "U1"})

	if removed := svc.PruneSessions(clock.Now().Add(30 * time.Minute)); removed != 0 {
		t.Fatalf("expected nothing pruned, got %d", removed)
	}
	if removed := svc.PruneSessions(clock.Now().Add(2 * time.Hour)); removed != 1 {
		t.Fatalf("expected one session pruned, got %d", removed)
	}
	if _, err := svc.View(context.Background(), view.SessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected pruned session to be gone, got %v", err)
	}
}

func TestListQuotesRequiresOperator(t *testing.T) {
	svc, _ := newTestService(nil)
	if _, err := svc.ListQuotes(context.Background(), 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	guest := WithActor(context.Background(), domain.Actor{Username: "guest", Role: "viewer"})
	if _, err := svc.ListQuotes(guest, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown role, got %v", err)
	}

	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
	quotes, err := svc.ListQuotes(ctx, 10)
	if err != nil || len(quotes) != 0 {
		t.Fatalf("expected empty list, got %v %v", quotes, err)
	}
}
