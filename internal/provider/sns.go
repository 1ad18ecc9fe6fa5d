package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/notifygov/delivery-engine/internal/domain"
)

type snsAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ Client = (*SNSClient)(nil)

// SNSClient delivers SMS notifications through AWS SNS, the default SMS pool.
type SNSClient struct {
	api snsAPI
}

func NewSNSClient(cfg aws.Config) (*SNSClient, error) {
	return newSNSClient(sns.NewFromConfig(cfg))
}

func newSNSClient(api snsAPI) (*SNSClient, error) {
	if api == nil {
		return nil, fmt.Errorf("sns api is required")
	}
	return &SNSClient{api: api}, nil
}

func (c *SNSClient) ID() domain.Provider { return domain.ProviderSNS }

func (c *SNSClient) Send(ctx context.Context, notification domain.Notification) (*Response, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("sns client is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(notification.Recipient),
		Message:     aws.String(notification.Content),
	}

	output, err := c.api.Publish(ctx, input)
	if err != nil {
		return nil, wrapAWSError(err, "sns")
	}

	return &Response{Reference: aws.ToString(output.MessageId)}, nil
}
