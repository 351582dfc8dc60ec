// Package monitor implements the monitor bounded context: spread monitoring
// tasks, alert delivery and the query API.
package monitor

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	monitorDI "github.com/fd1az/pricegap-monitor/business/monitor/di"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/business/monitor/infra/httpapi"
	"github.com/fd1az/pricegap-monitor/business/monitor/infra/notify"
	pricingDI "github.com/fd1az/pricegap-monitor/business/pricing/di"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/config"
	"github.com/fd1az/pricegap-monitor/internal/di"
	"github.com/fd1az/pricegap-monitor/internal/logger"
	"github.com/fd1az/pricegap-monitor/internal/monolith"
)

// Module implements the monitor bounded context.
type Module struct{}

// RegisterServices registers all monitor services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, monitorDI.WebSocket, func(sr di.ServiceRegistry) *notify.WebSocketNotifier {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Notify.WebSocket.URL == "" {
			return nil
		}
		n, err := notify.NewWebSocketNotifier(cfg.Notify.WebSocket.URL)
		if err != nil {
			panic("failed to create websocket notifier: " + err.Error())
		}
		return n
	})

	di.RegisterToken(c, monitorDI.RedisClient, func(sr di.ServiceRegistry) *redis.Client {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Notify.Redis.Addr == "" {
			return nil
		}
		return notify.NewRedisClient(cfg.Notify.Redis.Addr, cfg.Notify.Redis.Password, cfg.Notify.Redis.DB)
	})

	// Register Notifier - fan-out over every configured sink
	di.RegisterToken(c, monitorDI.Notifier, func(sr di.ServiceRegistry) *notify.FanOut {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var sinks []notify.NamedNotifier

		// the console sink would tear the dashboard, so it is CLI only
		if cfg.Notify.Console && !cfg.TUIMode {
			sinks = append(sinks, notify.NewConsoleNotifier(os.Stdout))
		}
		if cfg.Notify.Webhook.URL != "" {
			wh, err := notify.NewWebhookNotifier(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Timeout)
			if err != nil {
				panic("failed to create webhook notifier: " + err.Error())
			}
			sinks = append(sinks, wh)
		}
		if ws := monitorDI.GetWebSocket(sr); ws != nil {
			sinks = append(sinks, ws)
		}
		if rc := monitorDI.GetRedisClient(sr); rc != nil {
			sinks = append(sinks, notify.NewRedisPublisher(rc, cfg.Notify.Redis.Channel))
		}

		return notify.NewFanOut(log, sinks...)
	})

	// Register Monitor (public)
	di.RegisterToken(c, monitorDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("chainRegistry").(*pricingDomain.ChainRegistry)

		mon, err := app.NewMonitor(app.Config{
			DefaultInterval: cfg.Monitor.Interval,
			MaxParallel:     cfg.Engine.MaxParallel,
		}, registry, pricingDI.GetSourceManager(sr), pricingDI.GetPriceCache(sr), monitorDI.GetNotifier(sr), log)
		if err != nil {
			panic("failed to create monitor: " + err.Error())
		}
		mon.AddObserver(notify.NewLogObserver(log))
		return mon
	})

	// Register APIServer (public)
	di.RegisterToken(c, monitorDI.APIServer, func(sr di.ServiceRegistry) *httpapi.Server {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("chainRegistry").(*pricingDomain.ChainRegistry)
		return httpapi.NewServer(cfg.HTTP.APIPort, monitorDI.GetMonitor(sr), registry, log)
	})

	return nil
}

// Startup connects push sinks, starts configured tasks and the API server.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	sr := mono.Services()

	mon := monitorDI.GetMonitor(sr)
	fanout := monitorDI.GetNotifier(sr)

	if ws := monitorDI.GetWebSocket(sr); ws != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := ws.Connect(connectCtx); err != nil {
			log.Warn(ctx, "alert websocket unreachable, alerts will not be pushed there", "error", err)
		}
		cancel()
		mono.OnClose(ws.Close)
	}
	if rc := monitorDI.GetRedisClient(sr); rc != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx).Err(); err != nil {
			log.Warn(ctx, "redis unreachable, publishes will fail until it is back", "error", err)
		}
		cancel()
		mono.OnClose(rc.Close)
	}

	// closers run in reverse: the API server stops first, then the tasks, then the sinks
	mono.OnClose(func() error {
		mon.StopAll()
		return nil
	})

	for _, tc := range cfg.Monitor.Tasks {
		task, err := domain.NewMonitoringTask(tc.ID, tc.ChainA, tc.ChainB, tc.ThresholdPercent, tc.CooldownSeconds)
		if err != nil {
			return err
		}
		if tc.Active != nil {
			task.Active = *tc.Active
		}
		if err := mon.StartTask(task, tc.Interval); err != nil {
			return err
		}
	}

	if cfg.HTTP.APIPort > 0 {
		server := monitorDI.GetAPIServer(sr)
		if err := server.Start(); err != nil {
			return err
		}
		mono.OnClose(func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(stopCtx)
		})
	}

	log.Info(ctx, "monitor module started",
		"tasks", len(cfg.Monitor.Tasks),
		"sinks", fanout.Names(),
		"api_port", cfg.HTTP.APIPort,
	)
	return nil
}
