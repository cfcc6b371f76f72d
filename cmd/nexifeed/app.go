// ABOUTME: Wires storage, the event bus, subscribers, and services into one application
// ABOUTME: Shared by serve, the one-shot CLI commands, and the MCP server

package main

import (
	"github.com/nats-io/nats.go"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/fetch"
	"github.com/harper/nexifeed/internal/importer"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/parse"
	"github.com/harper/nexifeed/internal/subscribers"
)

type app struct {
	bus      *events.Bus
	catalog  *catalog.Service
	ingester *ingest.Service
	importer *importer.Importer

	async []*events.AsyncHandler
	nats  *nats.Conn
}

// newApp builds the services over the global store. m may be nil.
func newApp(m *metrics.Metrics) (*app, error) {
	a := &app{bus: events.NewBus(logger)}

	a.catalog = catalog.NewService(store, a.bus, logger)
	a.ingester = ingest.NewService(
		parse.NewSource(fetch.New(cfg.Fetch.Timeout)),
		store,
		a.bus,
		ingest.WithRegistrar(a.catalog),
		ingest.WithLogger(logger),
		ingest.WithConcurrency(cfg.Ingest.Concurrency),
	)
	a.importer = importer.New(a.ingester, a.catalog, cfg.Ingest.ImportMaxItems, logger)

	a.subscribe("notifications",
		subscribers.NewNotificationSubscriber(store, subscribers.LogNotifier{Logger: logger}, logger).Handle)
	a.subscribe("ai-trigger",
		subscribers.NewAITriggerSubscriber(store, subscribers.LogAnalyzer{Logger: logger}, logger).Handle)

	if m != nil {
		a.bus.Subscribe(events.Subscription{
			Name:    "metrics",
			Topic:   events.TopicItemCreated,
			Handler: subscribers.NewMetricsSubscriber(store, m).Handle,
		})
	}

	if cfg.NATS.URL != "" {
		conn, err := subscribers.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nats = conn
		a.subscribe("nats-bridge", subscribers.NewNATSBridge(conn, cfg.NATS.Subject, m).Handle)
	}
	return a, nil
}

// subscribe registers handler for item.created behind a bounded queue.
func (a *app) subscribe(name string, handler events.Handler) {
	h := events.Async(name, handler, cfg.Events.QueueSize, cfg.Events.Workers, logger)
	a.async = append(a.async, h)
	a.bus.Subscribe(events.Subscription{
		Name:    name,
		Topic:   events.TopicItemCreated,
		Handler: h.Handle,
	})
}

// Close drains queued events, then disconnects from NATS.
func (a *app) Close() {
	for _, h := range a.async {
		h.Close()
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.nats.Close()
		}
	}
}
