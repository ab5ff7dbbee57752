package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"civic-api/internal/geo"
	"civic-api/internal/issue"
	"civic-api/internal/municipality"

	"github.com/domodwyer/mailyak/v3"
)

// Router supplies recipients; *municipality.Registry satisfies it.
type Router interface {
	DepartmentEmails(p geo.Coordinate, category string) []string
	Info(p geo.Coordinate) municipality.Info
}

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Transport hands a composed message to a mail server.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPTransport sends through mailyak with PLAIN auth when a username is set.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Deliver(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}
	mail := mailyak.New(net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port)), auth)
	mail.To(m.To...)
	mail.From(t.cfg.From)
	if t.cfg.FromName != "" {
		mail.FromName(t.cfg.FromName)
	}
	mail.Subject(m.Subject)
	mail.Plain().Set(m.Body)
	return mail.Send()
}

// EmailNotifier composes a plain-text e-mail and routes it by the issue's
// location and category.
type EmailNotifier struct {
	routing   Router
	transport Transport
	l         *slog.Logger
}

func NewEmailNotifier(routing Router, transport Transport, l *slog.Logger) *EmailNotifier {
	return &EmailNotifier{routing: routing, transport: transport, l: l}
}

func (n *EmailNotifier) Send(ctx context.Context, it issue.Issue, kind Kind) Result {
	to := n.routing.DepartmentEmails(it.Coordinate, it.Type)
	if len(to) == 0 {
		return record(kind, Failed(fmt.Errorf("no recipients for issue %d", it.ID)))
	}
	msg := Compose(it, kind, n.routing.Info(it.Coordinate), to)
	start := time.Now()
	if err := n.transport.Deliver(ctx, msg); err != nil {
		n.l.Warn("notify_send_error", "kind", kind, "issue_id", it.ID, "err", err)
		return record(kind, Failed(fmt.Errorf("deliver %s notification: %w", kind, err)))
	}
	n.l.Info("notify_sent", "kind", kind, "issue_id", it.ID, "recipients", len(to),
		"duration_ms", time.Since(start).Milliseconds())
	return record(kind, Delivered)
}

func subject(it issue.Issue, kind Kind, m municipality.Info) string {
	switch kind {
	case KindSupport:
		return fmt.Sprintf("[%s] %s now has %d supporters", it.ReportID, it.Type, it.UpvoteCount)
	case KindReminder:
		return fmt.Sprintf("Reminder: [%s] %s is still %s", it.ReportID, it.Type, it.Status)
	default:
		return fmt.Sprintf("New %s report [%s] for %s", it.Type, it.ReportID, m.Name)
	}
}

// Compose renders the message. Exported for the CLI preview.
func Compose(it issue.Issue, kind Kind, m municipality.Info, to []string) Message {
	var b strings.Builder
	line := func(k, v string) { fmt.Fprintf(&b, "%-13s %s\n", k+":", v) }
	line("Report", it.ReportID)
	line("Category", it.Type)
	line("Status", string(it.Status))
	line("Municipality", m.Name)
	line("Address", it.Address)
	line("Location", it.Coordinate.String())
	line("Supporters", strconv.FormatInt(it.UpvoteCount, 10))
	line("Reported", it.CreatedAt.UTC().Format(time.RFC3339))
	if it.Notes != nil && *it.Notes != "" {
		line("Notes", *it.Notes)
	}
	if it.PhotoURL != nil && *it.PhotoURL != "" {
		line("Photo", *it.PhotoURL)
	}
	return Message{To: to, Subject: subject(it, kind, m), Body: b.String()}
}
