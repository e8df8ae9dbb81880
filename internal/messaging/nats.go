// Package messaging mirrors chat room traffic over NATS so other local
// processes can follow a room without opening their own broker session.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectChat is the prefix of mirrored chat subjects: circle.chat.<event_id>.
const SubjectChat = "circle.chat"

// ChatSubject returns the mirror subject for an event room.
func ChatSubject(eventID string) string {
	return SubjectChat + "." + eventID
}

// ErrNotFollowing is returned by Unfollow for a room that has no subscription.
var ErrNotFollowing = errors.New("messaging: not following room")

// BusConfig holds NATS connection settings.
type BusConfig struct {
	URL           string
	Name          string // client name shown in server monitoring
	ReconnectWait time.Duration
	MaxReconnects int // -1 retries forever
	FlushTimeout  time.Duration
}

// DefaultBusConfig returns the settings used by the CLI for url.
func DefaultBusConfig(url string) BusConfig {
	if url == "" {
		url = nats.DefaultURL
	}
	return BusConfig{
		URL:           url,
		Name:          "circle",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
		FlushTimeout:  2 * time.Second,
	}
}

// Bus publishes and follows mirrored chat rooms.
type Bus struct {
	nc           *nats.Conn
	log          zerolog.Logger
	flushTimeout time.Duration

	mu      sync.Mutex
	follows map[string]*nats.Subscription // by event id
}

// Connect dials NATS. The initial connection must succeed; later drops are
// retried by the NATS client according to cfg.
func Connect(cfg BusConfig, log zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect %s: %w", cfg.URL, err)
	}
	log.Debug().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &Bus{
		nc:           nc,
		log:          log,
		flushTimeout: cfg.FlushTimeout,
		follows:      make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends raw data on subject.
func (b *Bus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Follow delivers every mirror event of eventID to fn. Payloads that do not
// decode are logged and skipped. Following a room twice replaces the first
// subscription.
func (b *Bus) Follow(eventID string, fn func(MirrorEvent)) error {
	sub, err := b.nc.Subscribe(ChatSubject(eventID), func(msg *nats.Msg) {
		ev, err := ParseMirrorEvent(msg.Data)
		if err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("skipping mirror event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return fmt.Errorf("messaging: follow %s: %w", eventID, err)
	}

	b.mu.Lock()
	prev := b.follows[eventID]
	b.follows[eventID] = sub
	b.mu.Unlock()

	if prev != nil {
		_ = prev.Unsubscribe()
	}
	return nil
}

// Unfollow stops delivery for eventID.
func (b *Bus) Unfollow(eventID string) error {
	b.mu.Lock()
	sub, ok := b.follows[eventID]
	delete(b.follows, eventID)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFollowing, eventID)
	}
	return sub.Unsubscribe()
}

// Flush waits until the server has processed everything sent so far,
// subscriptions included.
func (b *Bus) Flush() error {
	return b.nc.FlushTimeout(b.flushTimeout)
}

// Close drains pending deliveries and closes the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	b.follows = make(map[string]*nats.Subscription)
	b.mu.Unlock()

	if err := b.nc.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("nats drain failed")
	}
}
