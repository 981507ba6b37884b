package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

var ErrMailNotConfigured = errors.New("mail not configured")

type MailConfig struct {
	Addr     string
	Username string
	Password string
	From     string
	To       []string
	Cc       []string
	Subject  string
}

type Mailer interface {
	Send(ctx context.Context, body string) error
}

// SMTPMailer sends plain text mail with PLAIN auth when credentials are set.
type SMTPMailer struct {
	cfg  MailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPMailer(cfg MailConfig) *SMTPMailer {
	if cfg.Subject == "" {
		cfg.Subject = "【お問い合わせ】全塗装シミュレーターからのお問い合わせ"
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (m *SMTPMailer) Configured() bool {
	return m != nil && m.cfg.Addr != "" && m.cfg.From != "" && len(m.cfg.To) > 0
}

func (m *SMTPMailer) Send(ctx context.Context, body string) error {
	if !m.Configured() {
		return ErrMailNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host, _, err := net.SplitHostPort(m.cfg.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	recipients := append(append([]string{}, m.cfg.To...), m.cfg.Cc...)
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, recipients, m.message(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (m *SMTPMailer) message(body string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", mime.QEncoding.Encode("utf-8", "Modory Paint Simulator")+" <"+m.cfg.From+">")
	header("To", strings.Join(m.cfg.To, ", "))
	if len(m.cfg.Cc) > 0 {
		header("Cc", strings.Join(m.cfg.Cc, ", "))
	}
	header("Subject", mime.BEncoding.Encode("utf-8", m.cfg.Subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "base64")
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded + "\r\n")
	return buf.Bytes()
}

// SplitAddresses parses a comma separated address list.
func SplitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
