// Package bus provides the optional cross-instance fan-out channel (§2
// DOMAIN STACK): when more than one process runs this core behind a load
// balancer, a peer's room-mates may be connected to a different instance.
// Service republishes fanout.Broadcaster events over Redis Pub/Sub so every
// instance watching a room observes the same event stream. A nil *Service
// (REDIS_ADDR unset) makes every method a no-op, so the core runs
// single-instance with no code path change.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Message is the envelope carried on the wire between instances.
type Message struct {
	RoomID   string          `json:"roomId"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"` // the publishing instance's id, for echo suppression
}

// Service wraps a Redis client in a circuit breaker, same posture as every
// other external dependency in this stack: an external call that can hang
// must never block a signaling handler.
type Service struct {
	client     *redis.Client
	cb         *gobreaker.CircuitBreaker
	instanceID string
}

// NewService dials Redis and verifies connectivity. instanceID tags every
// published message so a subscriber can ignore its own publications.
func NewService(addr, password, instanceID string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(v)
		},
	}

	logging.Info(nil, "connected to redis pub/sub", zap.String("addr", addr))
	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st), instanceID: instanceID}, nil
}

func channelFor(roomID string) string { return "sfu:room:" + roomID }

// Publish satisfies fanout.Publisher: fire-and-forget, using the instance's
// background context, so a Redis outage degrades to single-instance fan-out
// rather than blocking the signaling handler that triggered the broadcast.
func (s *Service) Publish(roomID, event string, payload any) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.publish(context.Background(), roomID, event, payload); err != nil {
		logging.Warn(nil, "bus publish failed", zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, roomID, event string, payload any) error {
	_, err := s.cb.Execute(func() (any, error) {
		inner, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal bus payload: %w", err)
		}
		msg := Message{RoomID: roomID, Event: event, Payload: inner, SenderID: s.instanceID}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal bus envelope: %w", err)
		}
		return nil, s.client.Publish(ctx, channelFor(roomID), data).Err()
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerRejections.WithLabelValues("redis").Inc()
		return nil // graceful degradation: drop rather than block the caller
	}
	return err
}

// Subscribe runs until ctx is cancelled, invoking handler for every message
// published to roomID's channel by any instance (including this one —
// callers compare SenderID against their own instance id to suppress echo).
func (s *Service) Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(Message)) {
	if s == nil || s.client == nil {
		return
	}
	channel := channelFor(roomID)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					logging.Error(nil, "failed to decode bus message", zap.Error(err))
					continue
				}
				handler(msg)
			}
		}
	}()
}

// InstanceID returns the id this Service tags its own publications with.
func (s *Service) InstanceID() string {
	if s == nil {
		return ""
	}
	return s.instanceID
}

// Ping is used by the readiness probe (§2 AMBIENT STACK) to report the bus
// as a dependency, separate from the worker pool's own health.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (any, error) { return nil, s.client.Ping(ctx).Err() })
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerRejections.WithLabelValues("redis").Inc()
		return err
	}
	return err
}

func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
