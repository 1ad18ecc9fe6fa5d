package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pinpointsmsvoicev2"
	"github.com/notifygov/delivery-engine/internal/domain"
)

type pinpointAPI interface {
	SendTextMessage(ctx context.Context, input *pinpointsmsvoicev2.SendTextMessageInput, optFns ...func(*pinpointsmsvoicev2.Options)) (*pinpointsmsvoicev2.SendTextMessageOutput, error)
}

var _ Client = (*PinpointClient)(nil)

// PinpointClient delivers SMS notifications through AWS End User Messaging
// (Pinpoint SMS), used for templates routed to the shortcode pool.
type PinpointClient struct {
	api                 pinpointAPI
	originationIdentity string
}

func NewPinpointClient(cfg aws.Config, originationIdentity string) (*PinpointClient, error) {
	return newPinpointClient(pinpointsmsvoicev2.NewFromConfig(cfg), originationIdentity)
}

func newPinpointClient(api pinpointAPI, originationIdentity string) (*PinpointClient, error) {
	if api == nil {
		return nil, fmt.Errorf("pinpoint api is required")
	}
	originationIdentity = strings.TrimSpace(originationIdentity)
	if originationIdentity == "" {
		return nil, fmt.Errorf("pinpoint origination identity is required")
	}
	return &PinpointClient{api: api, originationIdentity: originationIdentity}, nil
}

func (c *PinpointClient) ID() domain.Provider { return domain.ProviderPinpoint }

func (c *PinpointClient) Send(ctx context.Context, notification domain.Notification) (*Response, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("pinpoint client is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	input := &pinpointsmsvoicev2.SendTextMessageInput{
		DestinationPhoneNumber: aws.String(notification.Recipient),
		MessageBody:            aws.String(notification.Content),
		OriginationIdentity:    aws.String(c.originationIdentity),
	}

	output, err := c.api.SendTextMessage(ctx, input)
	if err != nil {
		return nil, wrapAWSError(err, "pinpoint")
	}

	return &Response{Reference: aws.ToString(output.MessageId)}, nil
}
