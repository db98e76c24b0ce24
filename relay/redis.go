// Package relay implements the optional cross-instance panel-event
// relay (SPEC_FULL.md §2 domain stack): when more than one panelrund
// process sits behind a load balancer, a client subscribed on instance
// A needs to see events emitted by a handler that happened to run on
// instance B. Redis.Publish sends a locally emitted event out to every
// other instance; Redis.Run receives those and feeds them back into
// panelmgr.Manager.ReceiveRemoteEvent for local fan-out.
//
// Grounded on adapter/redis/redis.go's PUBLISH-with-retry adapter.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/panelkit/runtime/execctx"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "panelrund:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis relay.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default DefaultRetries).
	Retries int
}

// wireEvent is the pub/sub message shape. Origin lets every instance
// discard its own publishes when they echo back on the subscription.
type wireEvent struct {
	PanelID string               `json:"panelId"`
	Event   execctx.EmittedEvent `json:"event"`
	Origin  string               `json:"origin"`
}

// Redis relays panel events across panelrund instances over a Redis
// pub/sub channel.
type Redis struct {
	config Config
	client *goredis.Client
	origin string
}

// NewRedis builds a relay from cfg. origin identifies this process
// instance (e.g. a hostname or generated id) so it can ignore its own
// publishes on the shared channel.
func NewRedis(cfg Config, origin string) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay: redis URL required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid redis URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("relay: retries must be >= 0, got %d", cfg.Retries)
	}
	return &Redis{config: cfg, client: goredis.NewClient(opts), origin: origin}, nil
}

// Publish implements panelmgr.Relay: sends event as a JSON PUBLISH to
// the configured channel, retrying with exponential backoff.
func (r *Redis) Publish(ctx context.Context, panelID string, event execctx.EmittedEvent) error {
	body, err := json.Marshal(wireEvent{PanelID: panelID, Event: event, Origin: r.origin})
	if err != nil {
		return fmt.Errorf("relay: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + r.config.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("relay: context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("relay: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		lastErr = r.client.Publish(publishCtx, r.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("relay: failed after %d attempts: %w", attempts, lastErr)
}

// Receiver is the subset of panelmgr.Manager this relay's Run loop feeds.
type Receiver interface {
	ReceiveRemoteEvent(panelID string, event execctx.EmittedEvent)
}

// Run subscribes to the configured channel and delivers every event not
// originated by this instance to recv, until ctx is canceled.
func (r *Redis) Run(ctx context.Context, recv Receiver) error {
	sub := r.client.Subscribe(ctx, r.config.Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Origin == r.origin {
				continue
			}
			recv.ReceiveRemoteEvent(ev.PanelID, ev.Event)
		}
	}
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
