package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the slice of the SNS client the SMS channel uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSChannel delivers short text messages through Amazon SNS.
type SMSChannel struct {
	client SNSAPI
}

// NewSMSChannel creates an SMS channel.
func NewSMSChannel(client SNSAPI) *SMSChannel {
	return &SMSChannel{client: client}
}

// Send delivers one message to one phone number.
func (c *SMSChannel) Send(ctx context.Context, phone, message string) error {
	if phone == "" {
		return fmt.Errorf("recipient phone is empty")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	}

	if _, err := c.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	return nil
}
