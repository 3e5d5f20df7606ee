package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/metrics"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 100

	outcomeAck          = "ack"
	outcomeNak          = "nak"
	outcomeSettleFailed = "settle_failed"
	outcomeDropped      = "dropped"
)

// WorkerPool runs handler over deliveries of one subject on a fixed set of
// goroutines. A handler error naks the delivery so JetStream redelivers it.
type WorkerPool struct {
	name    string
	queue   chan events.Delivery
	handler func(ctx context.Context, msg []byte) error

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func NewWorkerPool(ctx context.Context, name string, workers, queueSize int, handler func(ctx context.Context, msg []byte) error) *WorkerPool {
	if workers < 1 {
		workers = defaultWorkers
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}

	poolCtx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		name:    name,
		queue:   make(chan events.Delivery, queueSize),
		handler: handler,
		ctx:     poolCtx,
		cancel:  cancel,
	}

	pool.running.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}

	return pool
}

func (w *WorkerPool) run() {
	defer w.running.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case d := <-w.queue:
			metrics.Deliveries.WithLabelValues(w.name, w.settle(d)).Inc()
		}
	}
}

// settle handles one delivery and reports how it ended.
func (w *WorkerPool) settle(d events.Delivery) string {
	if err := w.handler(w.ctx, d.Data()); err != nil {
		slog.Error("delivery failed, asking for redelivery", "pool", w.name, "error", err)
		if err := d.Nak(); err != nil {
			slog.Error("nak failed", "pool", w.name, "error", err)
			return outcomeSettleFailed
		}
		return outcomeNak
	}

	if err := d.Ack(); err != nil {
		slog.Error("ack failed", "pool", w.name, "error", err)
		return outcomeSettleFailed
	}
	return outcomeAck
}

// Submit queues d, blocking while the queue is full. It reports false when
// ctx or the pool stops first; the delivery then stays unacked.
func (w *WorkerPool) Submit(ctx context.Context, d events.Delivery) bool {
	select {
	case w.queue <- d:
		return true
	case <-ctx.Done():
	case <-w.ctx.Done():
	}

	metrics.Deliveries.WithLabelValues(w.name, outcomeDropped).Inc()
	return false
}

// Stop cancels the workers. Queued deliveries that were not picked up are
// redelivered by JetStream once their ack wait expires.
func (w *WorkerPool) Stop() {
	w.cancel()
}

func (w *WorkerPool) Wait() {
	w.running.Wait()
}
