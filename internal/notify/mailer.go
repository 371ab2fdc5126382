package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	netmail "net/mail"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

type MailKind string

const (
	MailMention       MailKind = "mention"
	MailAnnouncement  MailKind = "announcement"
	MailMotionBlocked MailKind = "motion_blocked"
)

// Mail is one email about a vote, addressed to a single recipient.
// Position is the one the event recorded; Vote may have moved on since.
type Mail struct {
	Kind     MailKind
	To       models.User
	Voter    models.User
	Position models.Position
	Vote     models.Vote
	Motion   models.Motion
}

func (m Mail) Subject() string {
	switch m.Kind {
	case MailMotionBlocked:
		return fmt.Sprintf("%s blocked your motion %q", displayName(m.Voter), m.Motion.Name)
	case MailAnnouncement:
		return fmt.Sprintf("%s %s on %q", displayName(m.Voter), m.Position.Verb(), m.Motion.Name)
	default:
		return fmt.Sprintf("%s mentioned you on %q", displayName(m.Voter), m.Motion.Name)
	}
}

func (m Mail) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %q.\r\n", displayName(m.Voter), m.Position.Verb(), m.Motion.Name)
	if m.Vote.Statement != "" {
		fmt.Fprintf(&b, "\r\n%s\r\n", m.Vote.Statement)
	}
	return b.String()
}

type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPMailer delivers plain-text mail through an SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		Addr: fmt.Sprintf("%s:%d", host, port),
		From: from,
		Auth: auth,
		send: smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := address("", m.From)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	to, err := address(displayName(mail.To), mail.To.Email)
	if err != nil {
		return fmt.Errorf("user %d: %w", mail.To.ID, err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(mail.Subject())))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(mail.Body())

	if err := m.send(m.Addr, m.Auth, from.Address, []string{to.Address}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to.Address, err)
	}
	return nil
}

var errBadAddress = errors.New("invalid email address")

// address validates email and pairs it with a display name safe to put in
// a header.
func address(name, email string) (*netmail.Address, error) {
	if email == "" || strings.ContainsAny(email, "\r\n") {
		return nil, errBadAddress
	}
	parsed, err := netmail.ParseAddress(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadAddress, err)
	}
	return &netmail.Address{Name: headerValue(name), Address: parsed.Address}, nil
}

// headerValue folds CR and LF into spaces so user text stays on one header line.
func headerValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}

// LogMailer writes mail to the log instead of sending it. Used when no
// SMTP relay is configured.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, mail Mail) error {
	m.Logger.Info("mail",
		zap.String("kind", string(mail.Kind)),
		zap.Int("to_user_id", mail.To.ID),
		zap.String("to", mail.To.Email),
		zap.String("subject", mail.Subject()),
	)
	return nil
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
