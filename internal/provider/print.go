package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
)

const defaultPrintTimeout = 30 * time.Second

type printRequest struct {
	Reference string `json:"reference"`
	Address   string `json:"address"`
	Content   string `json:"content"`
}

type printResponse struct {
	ID string `json:"id"`
}

var _ Client = (*PrintClient)(nil)

// PrintClient hands letter notifications to the print vendor's HTTP API.
// The vendor accepts synchronously; there is no delivery receipt.
type PrintClient struct {
	client   *resty.Client
	endpoint string
}

func NewPrintClient(endpoint string, apiKey string) (*PrintClient, error) {
	client := resty.New()
	client.SetTimeout(defaultPrintTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetAuthToken(apiKey)
	}

	return NewPrintClientWithClient(endpoint, client)
}

func NewPrintClientWithClient(endpoint string, client *resty.Client) (*PrintClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("print endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid print endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPrintTimeout)
	}
	client.SetRetryCount(0)

	return &PrintClient{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *PrintClient) ID() domain.Provider { return domain.ProviderPrint }

func (c *PrintClient) Send(ctx context.Context, notification domain.Notification) (*Response, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("print client is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	reqBody := printRequest{
		Reference: notification.ID,
		Address:   notification.Recipient,
		Content:   notification.Content,
	}

	var respBody printResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&respBody).
		Post(c.endpoint)
	if err != nil {
		return nil, &Error{
			Message:   "print vendor request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &Error{
			Message:   "print vendor returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseText := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			Reference:  respBody.ID,
			StatusCode: statusCode,
			Body:       responseText,
		}, nil
	}

	return nil, &Error{
		StatusCode: statusCode,
		Message:    printErrorMessage(statusCode, responseText),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func printErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("print vendor returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
