package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// Ensure RedisPublisher implements Notifier.
var _ app.Notifier = (*RedisPublisher)(nil)

// Publisher is the part of a redis client the publisher uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher PUBLISHes alert envelopes on a channel for downstream consumers.
type RedisPublisher struct {
	client  Publisher
	channel string
}

// NewRedisPublisher creates a RedisPublisher on client.
func NewRedisPublisher(client Publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = "pricegap:alerts"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// NewRedisClient opens a go-redis client.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (p *RedisPublisher) Name() string { return "redis" }

// Notify publishes the alert. Zero receivers is not an error.
func (p *RedisPublisher) Notify(ctx context.Context, a domain.Alert) error {
	payload, err := json.Marshal(newEnvelope(a))
	if err != nil {
		return apperror.New(apperror.CodeNotifyFailed, apperror.WithCause(err), apperror.WithContext("redis marshal"))
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return apperror.New(apperror.CodeNotifyFailed, apperror.WithCause(err), apperror.WithContext("redis "+p.channel))
	}
	return nil
}
