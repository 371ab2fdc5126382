package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

// BlockAlerter sends an out-of-band alert to a motion author whose motion
// was blocked.
type BlockAlerter interface {
	AlertBlocked(ctx context.Context, author, voter models.User, motion models.Motion) error
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioAlerter texts the author through the Twilio Messaging API.
type TwilioAlerter struct {
	from string
	api  messageCreator
}

func NewTwilioAlerter(accountSID, authToken, from string) *TwilioAlerter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioAlerter{from: from, api: client.Api}
}

func (a *TwilioAlerter) AlertBlocked(ctx context.Context, author, voter models.User, motion models.Motion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if author.Phone == "" {
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(author.Phone)
	params.SetFrom(a.from)
	params.SetBody(fmt.Sprintf("%s blocked your motion %q", displayName(voter), motion.Name))

	if _, err := a.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio message to user %d: %w", author.ID, err)
	}
	return nil
}
