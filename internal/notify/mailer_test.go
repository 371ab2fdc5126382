package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

func sampleMail(kind MailKind) Mail {
	return Mail{
		Kind:     kind,
		To:       models.User{ID: 7, Username: "alice", Email: "alice@example.com"},
		Voter:    models.User{ID: 3, Username: "vera"},
		Position: models.PositionBlock,
		Vote:     models.Vote{Position: models.PositionBlock, Statement: "not yet"},
		Motion:   models.Motion{Name: "Adopt the budget"},
	}
}

func TestMailSubjects(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `vera blocked your motion "Adopt the budget"`, sampleMail(MailMotionBlocked).Subject())
	assert.Equal(t, `vera blocked on "Adopt the budget"`, sampleMail(MailAnnouncement).Subject())
	assert.Equal(t, `vera mentioned you on "Adopt the budget"`, sampleMail(MailMention).Subject())
	assert.Contains(t, sampleMail(MailMention).Body(), "not yet")
}

func TestMailUsesRecordedPosition(t *testing.T) {
	t.Parallel()

	mail := sampleMail(MailMotionBlocked)
	mail.Vote.Position = models.PositionYes

	assert.Equal(t, "vera blocked on \"Adopt the budget\".\r\n\r\nnot yet\r\n", mail.Body())
	mail.Kind = MailAnnouncement
	assert.Equal(t, `vera blocked on "Adopt the budget"`, mail.Subject())
}

func TestSMTPMailerSend(t *testing.T) {
	t.Parallel()

	m := NewSMTPMailer("smtp.example.com", 587, "", "", "votes@example.com")
	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Equal(t, "votes@example.com", from)
		return nil
	}

	require.NoError(t, m.Send(t.Context(), sampleMail(MailMention)))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "To: \"alice\" <alice@example.com>\r\n")
	assert.Contains(t, gotMsg, "Subject: vera mentioned you on \"Adopt the budget\"\r\n")
	assert.Nil(t, m.Auth)
}

func TestSMTPMailerErrors(t *testing.T) {
	t.Parallel()

	m := NewSMTPMailer("smtp.example.com", 25, "user", "secret", "votes@example.com")
	assert.NotNil(t, m.Auth)
	refused := errors.New("relay refused")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return refused }

	err := m.Send(t.Context(), sampleMail(MailMention))
	assert.ErrorIs(t, err, refused)

	noEmail := sampleMail(MailMention)
	noEmail.To.Email = ""
	assert.Error(t, m.Send(t.Context(), noEmail))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, sampleMail(MailMention)), context.Canceled)
}

func headerSection(t *testing.T, msg string) string {
	t.Helper()
	headers, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	return headers
}

func TestSMTPMailerKeepsUserTextOutOfHeaders(t *testing.T) {
	t.Parallel()

	m := NewSMTPMailer("smtp.example.com", 587, "", "", "votes@example.com")
	var msgs []string
	var rcpts [][]string
	m.send = func(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		msgs = append(msgs, string(msg))
		rcpts = append(rcpts, to)
		return nil
	}

	mail := sampleMail(MailMention)
	mail.Voter.Name = "Eve\r\nBcc: victim@evil.example"
	mail.To.Name = "Alice\r\n\r\nforged body"
	require.NoError(t, m.Send(t.Context(), mail))

	require.Len(t, msgs, 1)
	headers := headerSection(t, msgs[0])
	for _, line := range strings.Split(headers, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
	}
	assert.Len(t, strings.Split(headers, "\r\n"), 5)
	assert.Equal(t, []string{"alice@example.com"}, rcpts[0])

	mail = sampleMail(MailMention)
	mail.Voter.Name = "Zoë"
	require.NoError(t, m.Send(t.Context(), mail))
	assert.Contains(t, headerSection(t, msgs[1]), "Subject: =?utf-8?q?")
}

func TestSMTPMailerRejectsBadAddresses(t *testing.T) {
	t.Parallel()

	m := NewSMTPMailer("smtp.example.com", 587, "", "", "votes@example.com")
	called := false
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	for _, email := range []string{"alice@example.com\r\nBcc: victim@evil.example", "not an address", "a@b.com, c@d.com"} {
		mail := sampleMail(MailMention)
		mail.To.Email = email
		assert.Error(t, m.Send(t.Context(), mail), email)
	}
	assert.False(t, called)

	m.From = "votes@example.com\nBcc: x@evil.example"
	assert.Error(t, m.Send(t.Context(), sampleMail(MailMention)))
}

type fakeMessages struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestTwilioAlerter(t *testing.T) {
	t.Parallel()

	api := &fakeMessages{}
	a := &TwilioAlerter{from: "+15550000000", api: api}
	author := models.User{ID: 1, Phone: "+15551234567"}
	voter := models.User{ID: 2, Name: "Vera"}
	motion := models.Motion{Name: "Adopt the budget"}

	require.NoError(t, a.AlertBlocked(t.Context(), author, voter, motion))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+15551234567", *api.params[0].To)
	assert.Equal(t, "+15550000000", *api.params[0].From)
	assert.Equal(t, `Vera blocked your motion "Adopt the budget"`, *api.params[0].Body)

	require.NoError(t, a.AlertBlocked(t.Context(), models.User{ID: 3}, voter, motion))
	assert.Len(t, api.params, 1)

	api.err = errors.New("twilio unavailable")
	assert.ErrorIs(t, a.AlertBlocked(t.Context(), author, voter, motion), api.err)
}
