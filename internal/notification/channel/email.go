package channel

import (
	"context"

	"billing-workers/internal/notification"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailAdapter sends email through Amazon SES.
type EmailAdapter struct {
	client SESService
	from   string
}

func NewEmailAdapter(client SESService, from string) *EmailAdapter {
	return &EmailAdapter{client: client, from: from}
}

func (a *EmailAdapter) Channel() notification.Channel { return notification.ChannelEmail }

func (a *EmailAdapter) Deliver(ctx context.Context, msg Message) DeliveryResult {
	if a.client == nil || a.from == "" {
		return Misconfigured("ses sender not configured")
	}
	if msg.Recipient.Email == "" {
		return Misconfigured("recipient %s has no email address", msg.Recipient.ID)
	}

	out, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.Recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(a.from),
	})
	if err != nil {
		return Failed("ses: %v", err)
	}
	return Delivered(aws.ToString(out.MessageId))
}
