package notify

import (
	"context"
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/httpclient"
)

// Ensure WebhookNotifier implements Notifier.
var _ app.Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier POSTs each alert as JSON.
type WebhookNotifier struct {
	url    string
	client httpclient.Client
}

// NewWebhookNotifier creates a WebhookNotifier for url.
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if url == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("webhook url is required"))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("alert-webhook"),
		httpclient.WithRequestTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}

	return &WebhookNotifier{url: url, client: client}, nil
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify posts the alert envelope.
func (n *WebhookNotifier) Notify(ctx context.Context, a domain.Alert) error {
	_, err := n.client.NewRequest("alert").SetBody(newEnvelope(a)).Post(ctx, n.url)
	if err != nil {
		return apperror.New(apperror.CodeNotifyFailed, apperror.WithCause(err), apperror.WithContext("webhook"))
	}
	return nil
}
