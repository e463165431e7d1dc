package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	apperrors "github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

const (
	defaultRequestTimeout = 10 * time.Second

	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = 30 * time.Second
)

// RequestEnvelope is what external transports publish on the request channel.
type RequestEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// ReplyTo overrides the bridge's reply channel for this request.
	ReplyTo string `json:"reply_to,omitempty"`
}

// ReplyError is the wire form of a failed request.
type ReplyError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ReplyEnvelope answers one request. Result may be set alongside Error, as for
// an unavailable route.
type ReplyEnvelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OK         bool        `json:"ok"`
	Result     any         `json:"result,omitempty"`
	Error      *ReplyError `json:"error,omitempty"`
	InstanceID string      `json:"instance_id"`
	Timestamp  int64       `json:"timestamp"`
}

// EventDecoder turns a request payload into a bus event.
type EventDecoder func(eventType string, data []byte, now time.Time) (events.DomainEvent, error)

// RedisEventBridge feeds requests from a Redis channel into the event bus and
// publishes each handler's reply.
type RedisEventBridge struct {
	client         *redis.Client
	bus            events.EventPublisher
	decode         EventDecoder
	requestChannel string
	replyChannel   string
	timeout        time.Duration
	instanceID     string
	logger         logger.Interface
}

// NewRedisEventBridge creates a bridge between the given channels and bus.
func NewRedisEventBridge(
	client *redis.Client,
	bus events.EventPublisher,
	decode EventDecoder,
	requestChannel, replyChannel string,
	logger logger.Interface,
) *RedisEventBridge {
	return &RedisEventBridge{
		client:         client,
		bus:            bus,
		decode:         decode,
		requestChannel: requestChannel,
		replyChannel:   replyChannel,
		timeout:        defaultRequestTimeout,
		instanceID:     uuid.NewString(),
		logger:         logger,
	}
}

// InstanceID identifies this process in replies.
func (b *RedisEventBridge) InstanceID() string {
	return b.instanceID
}

// Run subscribes until ctx ends, reconnecting with exponential backoff.
func (b *RedisEventBridge) Run(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = reconnectInitialInterval
	expBackoff.MaxInterval = reconnectMaxInterval
	expBackoff.Reset()

	for {
		connected, err := b.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			expBackoff.Reset()
		}

		delay := expBackoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("event bridge gave up reconnecting: %w", err)
		}

		b.logger.Warnw("event bridge disconnected, reconnecting",
			"channel", b.requestChannel,
			"error", err,
			"backoff", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// subscribe handles requests in arrival order until the subscription ends.
// connected reports whether the subscription was established.
func (b *RedisEventBridge) subscribe(ctx context.Context) (connected bool, err error) {
	pubsub := b.client.Subscribe(ctx, b.requestChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to channel %s: %w", b.requestChannel, err)
	}

	b.logger.Infow("event bridge subscribed",
		"channel", b.requestChannel,
		"instance_id", b.instanceID,
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("event bridge stopped",
				"channel", b.requestChannel,
				"reason", ctx.Err(),
			)
			return true, ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return true, fmt.Errorf("channel %s closed", b.requestChannel)
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *RedisEventBridge) handle(ctx context.Context, payload string) {
	var req RequestEnvelope
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		b.logger.Warnw("dropping unreadable request",
			"payload", payload,
			"error", err,
		)
		return
	}

	reply := ReplyEnvelope{
		ID:         req.ID,
		Type:       req.Type,
		InstanceID: b.instanceID,
	}

	event, err := b.decode(req.Type, req.Payload, biztime.NowUTC())
	if err == nil {
		dispatchCtx, cancel := context.WithTimeout(ctx, b.timeout)
		reply.Result, err = b.bus.Dispatch(dispatchCtx, event)
		cancel()
	}

	if err != nil {
		reply.Error = toReplyError(err)
	} else {
		reply.OK = true
	}
	reply.Timestamp = biztime.NowUTC().Unix()

	channel := b.replyChannel
	if req.ReplyTo != "" {
		channel = req.ReplyTo
	}
	if err := b.publish(ctx, channel, reply); err != nil {
		b.logger.Errorw("failed to publish reply",
			"request_id", req.ID,
			"type", req.Type,
			"error", err,
		)
	}
}

func (b *RedisEventBridge) publish(ctx context.Context, channel string, reply ReplyEnvelope) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}

func toReplyError(err error) *ReplyError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return &ReplyError{
			Type:    string(appErr.Type),
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}
	return &ReplyError{
		Type:    string(apperrors.ErrorTypeInternal),
		Message: err.Error(),
	}
}
