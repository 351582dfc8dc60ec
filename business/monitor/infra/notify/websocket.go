package notify

import (
	"context"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/wsconn"
)

// Ensure WebSocketNotifier implements Notifier.
var _ app.Notifier = (*WebSocketNotifier)(nil)

// WebSocketNotifier pushes alerts over a long-lived websocket connection.
type WebSocketNotifier struct {
	client *wsconn.Client
}

// NewWebSocketNotifier creates a notifier for url. Call Connect before use.
func NewWebSocketNotifier(url string) (*WebSocketNotifier, error) {
	client, err := wsconn.New(wsconn.DefaultConfig(url, "alert-websocket"))
	if err != nil {
		return nil, err
	}
	return &WebSocketNotifier{client: client}, nil
}

func (n *WebSocketNotifier) Name() string { return "websocket" }

// Connect dials the endpoint. The client redials on its own after a drop.
func (n *WebSocketNotifier) Connect(ctx context.Context) error {
	return n.client.Connect(ctx)
}

// Notify sends the alert envelope.
func (n *WebSocketNotifier) Notify(ctx context.Context, a domain.Alert) error {
	if err := n.client.SendJSON(ctx, newEnvelope(a)); err != nil {
		return apperror.New(apperror.CodeNotifyFailed, apperror.WithCause(err), apperror.WithContext("websocket"))
	}
	return nil
}

// State returns the connection state.
func (n *WebSocketNotifier) State() wsconn.State {
	return n.client.State()
}

// Close closes the connection.
func (n *WebSocketNotifier) Close() error {
	return n.client.Close()
}
