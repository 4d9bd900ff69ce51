// Package sink carries events from the fanout path to one session's
// write pump.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-gateway/domain/event"
)

var (
	ErrClosed          = fmt.Errorf("sink closed")
	ErrDeliveryTimeout = fmt.Errorf("sink delivery timed out")
)

// ChannelSink is the delivery handle of one connected session: a
// buffered channel the session's write pump drains. Consume is called
// by fanout; it never blocks past the configured timeout, so one slow
// consumer cannot stall a broadcast.
type ChannelSink struct {
	Events chan event.DomainEvent

	log       *slog.Logger
	timeout   time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelSink(log *slog.Logger, bufferSize int, timeout time.Duration) *ChannelSink {
	return &ChannelSink{
		Events:  make(chan event.DomainEvent, bufferSize),
		log:     log,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Consume hands an event to the owning session. The write pump takes it
// from there. A closed sink fails fast; a full one fails after the
// delivery timeout and the event is dropped for this session only.
func (s *ChannelSink) Consume(ctx context.Context, e event.DomainEvent) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.Events <- e:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.log.Warn("Backpressure: dropping event for slow session", "event", e.EventName())
		return ErrDeliveryTimeout
	}
}

// Close marks the sink stale. Pending Consume calls unblock with
// ErrClosed; the channel itself is never closed so racing senders
// cannot panic.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done exposes closure to the owning write pump.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}
