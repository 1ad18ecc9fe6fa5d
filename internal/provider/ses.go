package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/notifygov/delivery-engine/internal/domain"
)

const defaultEmailSubject = "You have a new notification"

type sesAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

var _ Client = (*SESClient)(nil)

// SESClient delivers email notifications through AWS SES. Delivery is
// confirmed later by an asynchronous receipt keyed on the returned MessageId.
type SESClient struct {
	api    sesAPI
	source string
}

func NewSESClient(cfg aws.Config, source string) (*SESClient, error) {
	return newSESClient(ses.NewFromConfig(cfg), source)
}

func newSESClient(api sesAPI, source string) (*SESClient, error) {
	if api == nil {
		return nil, fmt.Errorf("ses api is required")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("ses source address is required")
	}
	return &SESClient{api: api, source: source}, nil
}

func (c *SESClient) ID() domain.Provider { return domain.ProviderSES }

func (c *SESClient) Send(ctx context.Context, notification domain.Notification) (*Response, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("ses client is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	subject := defaultEmailSubject
	if notification.Subject != nil && strings.TrimSpace(*notification.Subject) != "" {
		subject = *notification.Subject
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.source),
		Destination: &types.Destination{
			ToAddresses: []string{notification.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(notification.Content)},
			},
		},
	}

	output, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return nil, wrapAWSError(err, "ses")
	}

	return &Response{Reference: aws.ToString(output.MessageId)}, nil
}
