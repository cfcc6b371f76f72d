// ABOUTME: Bounded-queue adapter that moves slow event handlers off the publisher's path
// ABOUTME: Full queues drop events with a warning; Close drains what was accepted

package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// AsyncHandler runs a handler on worker goroutines fed by a bounded queue.
type AsyncHandler struct {
	name    string
	handler Handler
	logger  logrus.FieldLogger
	queue   chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx context.Context
	ev  Event
}

// Async wraps handler with a queue of queueSize events drained by workers.
func Async(name string, handler Handler, queueSize, workers int, logger logrus.FieldLogger) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		logger = discard
	}

	a := &AsyncHandler{
		name:    name,
		handler: handler,
		logger:  logger,
		queue:   make(chan queued, queueSize),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

// Handle enqueues ev. It never blocks; when the queue is full the event
// is dropped and a warning logged.
func (a *AsyncHandler) Handle(ctx context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("%s: handler closed", a.name)
	}

	// The publisher's context usually ends with its request.
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
		return nil
	default:
		a.dropped.Add(1)
		a.logger.WithFields(logrus.Fields{
			"subscriber": a.name,
			"topic":      ev.Topic,
		}).Warn("event queue full, dropping event")
		return nil
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (a *AsyncHandler) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued ones to finish.
func (a *AsyncHandler) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *AsyncHandler) work() {
	defer a.wg.Done()
	for q := range a.queue {
		if err := a.run(q); err != nil {
			a.logger.WithFields(logrus.Fields{
				"subscriber": a.name,
				"topic":      q.ev.Topic,
			}).WithError(err).Error("async event handler failed")
		}
	}
}

func (a *AsyncHandler) run(q queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.handler(q.ctx, q.ev)
}
