package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSES struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNS struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func TestEmailAdapter(t *testing.T) {
	t.Run("sends through ses", func(t *testing.T) {
		mockSES := &MockSES{
			SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
				assert.Equal(t, []string{"tenant@example.com"}, params.Destination.ToAddresses)
				assert.Equal(t, "billing@example.com", aws.ToString(params.Source))
				assert.Equal(t, "Reminder", aws.ToString(params.Message.Subject.Data))
				return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
			},
		}

		result := NewEmailAdapter(mockSES, "billing@example.com").Deliver(context.Background(), testMessage())
		require.True(t, result.Success)
		assert.Equal(t, "ses-1", result.MessageID)
	})

	t.Run("ses error is transient", func(t *testing.T) {
		mockSES := &MockSES{
			SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
				return nil, errors.New("throttled")
			},
		}

		result := NewEmailAdapter(mockSES, "billing@example.com").Deliver(context.Background(), testMessage())
		assert.False(t, result.Success)
		assert.False(t, result.Permanent)
		assert.Contains(t, result.Error, "throttled")
	})

	t.Run("missing sender is permanent", func(t *testing.T) {
		result := NewEmailAdapter(&MockSES{}, "").Deliver(context.Background(), testMessage())
		assert.True(t, result.Permanent)
	})

	t.Run("recipient without email is permanent", func(t *testing.T) {
		msg := testMessage()
		msg.Recipient.Email = ""
		result := NewEmailAdapter(&MockSES{}, "billing@example.com").Deliver(context.Background(), msg)
		assert.True(t, result.Permanent)
	})
}

func TestSMSAdapter(t *testing.T) {
	mockSNS := &MockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Equal(t, "+966501234567", aws.ToString(params.PhoneNumber))
			assert.Equal(t, "Rent due", aws.ToString(params.Message))
			assert.Equal(t, "ACME", aws.ToString(params.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
			return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
		},
	}

	result := NewSMSAdapter(mockSNS, "ACME", SaudiRules).Deliver(context.Background(), testMessage())
	require.True(t, result.Success)
	assert.Equal(t, "sns-1", result.MessageID)

	failing := &MockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("endpoint unreachable")
		},
	}
	result = NewSMSAdapter(failing, "", SaudiRules).Deliver(context.Background(), testMessage())
	assert.False(t, result.Success)
	assert.False(t, result.Permanent)
}
