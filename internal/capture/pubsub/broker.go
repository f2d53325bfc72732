// Package pubsub delivers newly captured rounds to in-process subscribers,
// one round at a time in chronological order. The WebSocket fan-out and any
// other consumers register here.
package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vuchq/crashwatch/internal/core/domain"
)

// Subscriber receives one round per call, in ascending round order.
type Subscriber interface {
	// Name identifies the subscriber in logs.
	Name() string

	// OnRound handles a newly captured round. Errors are logged, never
	// propagated; a failing subscriber must not affect its peers.
	OnRound(ctx context.Context, round *domain.Round) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc struct {
	ID string
	Fn func(ctx context.Context, round *domain.Round) error
}

func (s SubscriberFunc) Name() string { return s.ID }

func (s SubscriberFunc) OnRound(ctx context.Context, round *domain.Round) error {
	return s.Fn(ctx, round)
}

// Broker fans captured rounds out to registered subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	log         *slog.Logger
}

// NewBroker creates an empty broker.
func NewBroker(log *slog.Logger) *Broker {
	return &Broker{log: log}
}

// Subscribe registers a subscriber. Safe to call while publishing.
func (b *Broker) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish delivers one round to every subscriber. A panicking or erroring
// subscriber is logged and skipped; delivery to the rest continues.
func (b *Broker) Publish(ctx context.Context, round *domain.Round) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, round)
	}
}

func (b *Broker) deliver(ctx context.Context, s Subscriber, round *domain.Round) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked", "subscriber", s.Name(), "round", round.ID, "panic", r)
		}
	}()

	if err := s.OnRound(ctx, round); err != nil {
		b.log.Error("subscriber failed", "subscriber", s.Name(), "round", round.ID, "error", err)
	}
}
