// ABOUTME: In-process publish/subscribe bus with an explicit subscriber registry
// ABOUTME: Handler errors and panics are logged and never reach the publisher

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/models"
)

// Topics carried by the bus.
const (
	TopicItemCreated = "item.created"
	TopicDebug       = "debug"
)

// Event is one published message.
type Event struct {
	Topic   string
	Payload any
}

// ItemCreated is the payload of TopicItemCreated.
type ItemCreated struct {
	Item *models.Item
}

// Handler consumes an event. A returned error is logged by the bus.
type Handler func(ctx context.Context, ev Event) error

// Subscription binds a named handler to a topic.
type Subscription struct {
	Name    string
	Topic   string
	Handler Handler
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	logger logrus.FieldLogger

	mu   sync.RWMutex
	subs []Subscription
}

// NewBus creates a bus with its subscribers registered up front.
func NewBus(logger logrus.FieldLogger, subs ...Subscription) *Bus {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		logger = discard
	}
	b := &Bus{logger: logger}
	for _, sub := range subs {
		b.Subscribe(sub)
	}
	return b
}

// Subscribe adds a subscriber. Intended for startup wiring only.
func (b *Bus) Subscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Subscribers returns the registered subscriber names for a topic.
func (b *Bus) Subscribers(topic string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	for _, sub := range b.subs {
		if sub.Topic == topic {
			names = append(names, sub.Name)
		}
	}
	return names
}

// Publish delivers ev to every handler subscribed to its topic.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.Topic == ev.Topic {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.dispatch(ctx, sub, ev); err != nil {
			b.logger.WithFields(logrus.Fields{
				"subscriber": sub.Name,
				"topic":      ev.Topic,
			}).WithError(err).Error("event handler failed")
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, sub Subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.Handler(ctx, ev)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
