package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zentoso/backend/internal/cache"
	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/ratelimit"
	"zentoso/backend/internal/store/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type mailerStub struct {
	bodies []string
	err    error
}

func (m *mailerStub) Send(_ context.Context, body string) error {
	m.bodies = append(m.bodies, body)
	return m.err
}

type pusherStub struct {
	mu     sync.Mutex
	sent   map[string]string
	failTo string
}

func (p *pusherStub) Push(_ context.Context, to string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if to == p.failTo {
		return errors.New("status 400")
	}
	if p.sent == nil {
		p.sent = map[string]string{}
	}
	p.sent[to] = text
	return nil
}

type verifierStub struct{ userID string }

func (v verifierStub) Verify(_ context.Context, token string) (identity.Identity, error) {
	if token != "good-token" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return identity.Identity{UserID: v.userID, IDToken: token}, nil
}

type fixture struct {
	svc    *Service
	quotes *memory.Store
	mailer *mailerStub
	line   *pusherStub
	clock  *clock
}

func newFixture(verifier identity.Verifier) fixture {
	c := &clock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	f := fixture{
		quotes: memory.New(),
		mailer: &mailerStub{},
		line:   &pusherStub{},
		clock:  c,
	}
	f.svc = New(Options{
		Quotes:   f.quotes,
		Mailer:   f.mailer,
		Line:     f.line,
		AdminTo:  "Cadmin-group",
		Verifier: verifier,
		Cooldown: ratelimit.NewCooldown(cache.NewMemoryTimestampStore(), c, ratelimit.DefaultWindow, "intake:"),
		Now:      c.Now,
	})
	return f
}

func body(t *testing.T, mutate func(*domain.SubmissionPayload)) []byte {
	t.Helper()
	payload := domain.SubmissionPayload{
		Customer: domain.ContactForm{
			Name:           "山田 太郎",
			Furigana:       "やまだ たろう",
			Phone:          "090-1234-5678",
			Email:          "taro@example.jp",
			PreferredDate1: "2026-04-01",
			PreferredTime1: "10:00",
			PreferredDate2: "2026-04-02",
			Inquiry:        "<script>x</script>よろしくお願いします",
			InquiryType:    domain.InquiryVisit,
		},
		Quote: domain.SubmissionQuote{
			Vehicle:    domain.VehicleClass{ID: "kei", Name: "軽自動車"},
			Paint:      domain.PaintFinish{ID: domain.FinishPearl, Name: "パール"},
			Options:    []domain.SubmissionOption{{Name: "ラッピング剥離", Price: 50000, Quantity: 1}, {Name: "2色塗装", Price: 30000, Quantity: 1}},
			TotalPrice: 220000,
		},
		LineUserID:  "U1",
		LiffIDToken: "good-token",
	}
	if mutate != nil {
		mutate(&payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestReceiveFansOutToAllChannels(t *testing.T) {
	f := newFixture(nil)
	resp, err := f.svc.Receive(context.Background(), body(t, nil))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !resp.Success || resp.Results == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	r := resp.Results
	if !r.Spreadsheet || !r.Email || !r.LineAdmin || !r.LineUser || len(r.Errors) != 0 {
		t.Fatalf("expected all channels delivered, got %+v", r)
	}
	if !strings.Contains(f.line.sent["Cadmin-group"], "合計: ¥220,000") {
		t.Fatalf("unexpected admin push %q", f.line.sent["Cadmin-group"])
	}
	if !strings.Contains(f.mailer.bodies[0], "・2色塗装: ¥30,000") {
		t.Fatalf("unexpected mail body:\n%s", f.mailer.bodies[0])
	}
}

func TestReceiveRecordsSpreadsheetRow(t *testing.T) {
	f := newFixture(nil)
	if _, err := f.svc.Receive(context.Background(), body(t, nil)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	rows, _ := f.quotes.ListQuotes(context.Background(), 10)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0]
	if row.Options != "ラッピング剥離, 2色塗装" {
		t.Fatalf("unexpected options cell %q", row.Options)
	}
	if row.PreferredVisit1 != "2026-04-01 10:00" || row.PreferredVisit2 != "2026-04-02 時間未指定" || row.PreferredVisit3 != "" {
		t.Fatalf("unexpected visit cells %q %q %q", row.PreferredVisit1, row.PreferredVisit2, row.PreferredVisit3)
	}
	if row.Inquiry != "よろしくお願いします" {
		t.Fatalf("expected sanitized inquiry, got %q", row.Inquiry)
	}
	if !row.ReceivedAt.Equal(f.clock.now) {
		t.Fatalf("unexpected timestamp %v", row.ReceivedAt)
	}
}

func TestReceivePartialFailureStillSucceeds(t *testing.T) {
	f := newFixture(nil)
	f.mailer.err = errors.New("smtp: 421 service not available")
	f.line.failTo = "U1"

	resp, err := f.svc.Receive(context.Background(), body(t, nil))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success despite channel failures, got %+v", resp)
	}
	r := resp.Results
	if r.Email || r.LineUser || !r.Spreadsheet || !r.LineAdmin {
		t.Fatalf("unexpected channel flags %+v", r)
	}
	if len(r.Errors) != 2 || !strings.HasPrefix(r.Errors[0], "email:") || !strings.HasPrefix(r.Errors[1], "line_user:") {
		t.Fatalf("unexpected errors %v", r.Errors)
	}
}

func TestReceiveRejectsMalformedBody(t *testing.T) {
	f := newFixture(nil)
	for _, raw := range [][]byte{[]byte("not json"), []byte(`{"customer":{}}`)} {
		resp, err := f.svc.Receive(context.Background(), raw)
		if !errors.Is(err, ErrMalformed) || resp.Success {
			t.Fatalf("expected malformed rejection for %q, got %+v %v", raw, resp, err)
		}
	}
}

func TestReceiveCooldownPerUser(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	if _, err := f.svc.Receive(ctx, body(t, nil)); err != nil {
		t.Fatalf("first: %v", err)
	}

	f.clock.now = f.clock.now.Add(10 * time.Second)
	resp, err := f.svc.Receive(ctx, body(t, nil))
	if !errors.Is(err, ErrCooldown) || resp.Success {
		t.Fatalf("expected cooldown rejection, got %+v %v", resp, err)
	}
	if !strings.Contains(resp.Message, "50秒") {
		t.Fatalf("expected remaining seconds in message, got %q", resp.Message)
	}

	other := body(t, func(p *domain.SubmissionPayload) { p.LineUserID = "U2" })
	if _, err := f.svc.Receive(ctx, other); err != nil {
		t.Fatalf("expected other user to pass, got %v", err)
	}

	f.clock.now = f.clock.now.Add(51 * time.Second)
	if _, err := f.svc.Receive(ctx, body(t, nil)); err != nil {
		t.Fatalf("expected submission after window, got %v", err)
	}
}

func TestReceiveVerifiesIdentity(t *testing.T) {
	f := newFixture(verifierStub{userID: "U1"})
	ctx := context.Background()

	bad := body(t, func(p *domain.SubmissionPayload) { p.LiffIDToken = "forged" })
	if _, err := f.svc.Receive(ctx, bad); !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected identity failure, got %v", err)
	}
	mismatch := body(t, func(p *domain.SubmissionPayload) { p.LineUserID = "U-someone-else" })
	if _, err := f.svc.Receive(ctx, mismatch); !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected mismatch failure, got %v", err)
	}
	if _, err := f.svc.Receive(ctx, body(t, nil)); err != nil {
		t.Fatalf("expected verified submission, got %v", err)
	}
}

func TestReceiveSkipsCustomerPushForLocalIdentity(t *testing.T) {
	f := newFixture(nil)
	raw := body(t, func(p *domain.SubmissionPayload) { p.LineUserID = identity.MockUserID })
	resp, err := f.svc.Receive(context.Background(), raw)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.Results.LineUser {
		t.Fatalf("expected no push to placeholder user")
	}
	if _, ok := f.line.sent[identity.MockUserID]; ok {
		t.Fatalf("expected no push recorded for placeholder user")
	}
}

func TestRecordForInquiryOnly(t *testing.T) {
	var payload domain.SubmissionPayload
	if err := json.Unmarshal(body(t, func(p *domain.SubmissionPayload) {
		p.Customer.InquiryType = ""
		p.Customer.PreferredDate1, p.Customer.PreferredTime1 = "", "12:00"
	}), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	row := RecordFor(payload, time.Now())
	if row.InquiryType != domain.InquiryOnly {
		t.Fatalf("expected inquiry_only fallback, got %q", row.InquiryType)
	}
	if row.PreferredVisit1 != "日付未指定 12:00" {
		t.Fatalf("unexpected visit cell %q", row.PreferredVisit1)
	}
}
