// Package di contains dependency injection tokens for the monitor context.
package di

import (
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/infra/httpapi"
	"github.com/fd1az/pricegap-monitor/business/monitor/infra/notify"
	"github.com/fd1az/pricegap-monitor/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Monitor   = di.NewToken[*app.Monitor]("monitor.Monitor")
	APIServer = di.NewToken[*httpapi.Server]("monitor.APIServer")
)

// Private dependency tokens - internal to monitor module
var (
	Notifier    = di.NewToken[*notify.FanOut]("monitor:notifier")
	WebSocket   = di.NewToken[*notify.WebSocketNotifier]("monitor:websocket") // nil when not configured
	RedisClient = di.NewToken[*redis.Client]("monitor:redis")                  // nil when not configured
)

// Helper functions for type-safe access
func GetMonitor(c di.ServiceRegistry) *app.Monitor {
	return di.GetToken(c, Monitor)
}

func GetAPIServer(c di.ServiceRegistry) *httpapi.Server {
	return di.GetToken(c, APIServer)
}

func GetNotifier(c di.ServiceRegistry) *notify.FanOut {
	return di.GetToken(c, Notifier)
}

func GetWebSocket(c di.ServiceRegistry) *notify.WebSocketNotifier {
	return di.GetToken(c, WebSocket)
}

func GetRedisClient(c di.ServiceRegistry) *redis.Client {
	return di.GetToken(c, RedisClient)
}
