// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DeliveryRecorder receives one call per delivery attempt outcome.
type DeliveryRecorder interface {
	MailDelivery(kind, outcome string)
}

// Delivery outcomes reported to the [DeliveryRecorder].
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// DispatcherOptions tunes a [Dispatcher]. Zero values pick small defaults.
type DispatcherOptions struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	SendTimeout   time.Duration
	Recorder      DeliveryRecorder
}

// Dispatcher queues messages and delivers them from background workers.
type Dispatcher struct {
	sender   Sender
	logger   *slog.Logger
	limiter  *rate.Limiter
	timeout  time.Duration
	workers  int
	recorder DeliveryRecorder

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewDispatcher builds a stopped dispatcher. Call [Dispatcher.Start] to begin delivery.
func NewDispatcher(sender Sender, options DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.QueueSize <= 0 {
		options.QueueSize = 64
	}
	if options.SendTimeout <= 0 {
		options.SendTimeout = 10 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if options.RatePerSecond > 0 {
		limit = rate.Limit(options.RatePerSecond)
		burst = max(1, int(options.RatePerSecond))
	}

	return &Dispatcher{
		sender:   sender,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  options.SendTimeout,
		workers:  options.Workers,
		recorder: options.Recorder,
		queue:    make(chan Message, options.QueueSize),
	}
}

// Start launches the workers. ctx bounds rate-limit waits and every send.
func (dispatcher *Dispatcher) Start(ctx context.Context) {
	for range dispatcher.workers {
		dispatcher.wg.Add(1)
		go func() {
			defer dispatcher.wg.Done()
			for message := range dispatcher.queue {
				dispatcher.deliver(ctx, message)
			}
		}()
	}
}

// Enqueue hands message to the workers without blocking.
//
// It returns false when the queue is full or the dispatcher is closed. The
// message is then dropped and logged; callers never fail on it.
func (dispatcher *Dispatcher) Enqueue(message Message) bool {
	dispatcher.mu.RLock()
	defer dispatcher.mu.RUnlock()

	if dispatcher.closed {
		dispatcher.drop(message, "dispatcher_closed")
		return false
	}

	select {
	case dispatcher.queue <- message:
		return true
	default:
		dispatcher.drop(message, "queue_full")
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mu.Lock()
	if dispatcher.closed {
		dispatcher.mu.Unlock()
		return
	}
	dispatcher.closed = true
	close(dispatcher.queue)
	dispatcher.mu.Unlock()

	dispatcher.wg.Wait()
}

func (dispatcher *Dispatcher) deliver(ctx context.Context, message Message) {
	if err := dispatcher.limiter.Wait(ctx); err != nil {
		dispatcher.drop(message, "rate_wait_aborted")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, dispatcher.timeout)
	defer cancel()

	if err := dispatcher.sender.Send(sendCtx, message); err != nil {
		dispatcher.logger.Error("mail_delivery_failed",
			slog.String("kind", message.Kind),
			slog.Any("error", err),
		)
		dispatcher.record(message.Kind, OutcomeFailed)
		return
	}

	dispatcher.logger.Debug("mail_delivered", slog.String("kind", message.Kind))
	dispatcher.record(message.Kind, OutcomeSent)
}

func (dispatcher *Dispatcher) drop(message Message, reason string) {
	dispatcher.logger.Warn("mail_dropped",
		slog.String("kind", message.Kind),
		slog.String("reason", reason),
	)
	dispatcher.record(message.Kind, OutcomeDropped)
}

func (dispatcher *Dispatcher) record(kind, outcome string) {
	if dispatcher.recorder != nil {
		dispatcher.recorder.MailDelivery(kind, outcome)
	}
}
