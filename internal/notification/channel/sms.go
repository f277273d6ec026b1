package channel

import (
	"context"

	"billing-workers/internal/notification"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSAdapter publishes SMS directly to phone numbers through Amazon SNS.
type SMSAdapter struct {
	client   SNSService
	senderID string
	rules    PhoneRules
}

func NewSMSAdapter(client SNSService, senderID string, rules PhoneRules) *SMSAdapter {
	return &SMSAdapter{client: client, senderID: senderID, rules: rules}
}

func (a *SMSAdapter) Channel() notification.Channel { return notification.ChannelSMS }

func (a *SMSAdapter) Deliver(ctx context.Context, msg Message) DeliveryResult {
	if a.client == nil {
		return Misconfigured("sns client not configured")
	}
	phone := NormalizePhone(msg.Recipient.Phone, a.rules)
	if phone == "" {
		return Misconfigured("recipient %s has no phone number", msg.Recipient.ID)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(msg.Body),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if a.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(a.senderID),
		}
	}

	out, err := a.client.Publish(ctx, input)
	if err != nil {
		return Failed("sns: %v", err)
	}
	return Delivered(aws.ToString(out.MessageId))
}
