package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/checkout-lifecycle/internal/config"
	"github.com/safar/checkout-lifecycle/internal/models"
	"gopkg.in/gomail.v2"
)

var (
	ErrSend        = errors.New("send notification")
	ErrUnknownKind = errors.New("unknown notification kind")
	ErrNoRecipient = errors.New("notification has no recipient")
)

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns an SMTP sender, or a no-op sender when credentials are absent.
func NewSender(cfg config.MailConfig) Sender {
	if !cfg.Enabled() {
		slog.Warn("smtp credentials not configured, notifications will not be sent")
		return NoopSender{}
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("%w to %s: %v", ErrSend, msg.To, err)
	}
	return nil
}

// NoopSender drops every message with a warning.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg Message) error {
	slog.Warn("mail disabled, dropping notification", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Mailer renders outbox intents and hands them to a Sender.
type Mailer struct {
	catalog *Catalog
	sender  Sender
}

func NewMailer(catalog *Catalog, sender Sender) *Mailer {
	return &Mailer{catalog: catalog, sender: sender}
}

func (m *Mailer) Dispatch(ctx context.Context, n models.Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}

	msg, err := m.catalog.Render(n.Kind, n.Recipient, n.Data)
	if err != nil {
		return err
	}

	return m.sender.Send(ctx, msg)
}
