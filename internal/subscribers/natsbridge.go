// ABOUTME: Forwards item.created events to NATS as JSON envelopes
// ABOUTME: Lets out-of-process consumers react to new items without touching the store

package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/models"
)

// EnvelopeSource identifies this service in published envelopes.
const EnvelopeSource = "nexifeed"

// MessagePublisher is the part of *nats.Conn the bridge uses.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the message published for each event.
type Envelope struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Source    string       `json:"source"`
	Data      *models.Item `json:"data"`
}

// NATSBridge publishes item.created events to a subject.
type NATSBridge struct {
	conn    MessagePublisher
	subject string
	metrics *metrics.Metrics
	now     func() time.Time
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url string, logger logrus.FieldLogger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("nexifeed"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NewNATSBridge creates a bridge. m may be nil.
func NewNATSBridge(conn MessagePublisher, subject string, m *metrics.Metrics) *NATSBridge {
	return &NATSBridge{conn: conn, subject: subject, metrics: m, now: time.Now}
}

// Handle is an events.Handler.
func (b *NATSBridge) Handle(ctx context.Context, ev events.Event) error {
	item, err := itemFrom(ev)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{
		Type:      ev.Topic,
		Timestamp: b.now().UTC(),
		Source:    EnvelopeSource,
		Data:      item,
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		b.record("error")
		return fmt.Errorf("publish to %s: %w", b.subject, err)
	}
	b.record("success")
	return nil
}

func (b *NATSBridge) record(status string) {
	if b.metrics != nil {
		b.metrics.NATSMessagesPublished.WithLabelValues(b.subject, status).Inc()
	}
}
