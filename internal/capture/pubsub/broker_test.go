package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/vuchq/crashwatch/internal/core/domain"
)

func TestPublishDeliversToAll(t *testing.T) {
	broker := NewBroker(slog.Default())

	var got1, got2 []string
	broker.Subscribe(SubscriberFunc{ID: "one", Fn: func(ctx context.Context, r *domain.Round) error {
		got1 = append(got1, r.ID)
		return nil
	}})
	broker.Subscribe(SubscriberFunc{ID: "two", Fn: func(ctx context.Context, r *domain.Round) error {
		got2 = append(got2, r.ID)
		return nil
	}})

	broker.Publish(context.Background(), &domain.Round{ID: "1"})
	broker.Publish(context.Background(), &domain.Round{ID: "2"})

	if len(got1) != 2 || len(got2) != 2 {
		t.Fatalf("expected both subscribers to see 2 rounds, got %d and %d", len(got1), len(got2))
	}
	if got1[0] != "1" || got1[1] != "2" {
		t.Errorf("expected chronological delivery, got %v", got1)
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	broker := NewBroker(slog.Default())

	broker.Subscribe(SubscriberFunc{ID: "bad", Fn: func(ctx context.Context, r *domain.Round) error {
		return errors.New("boom")
	}})
	broker.Subscribe(SubscriberFunc{ID: "panicky", Fn: func(ctx context.Context, r *domain.Round) error {
		panic("worse")
	}})

	var got []string
	broker.Subscribe(SubscriberFunc{ID: "good", Fn: func(ctx context.Context, r *domain.Round) error {
		got = append(got, r.ID)
		return nil
	}})

	broker.Publish(context.Background(), &domain.Round{ID: "5"})

	if len(got) != 1 || got[0] != "5" {
		t.Errorf("healthy subscriber should still receive the round, got %v", got)
	}
}

func TestSubscribeDuringPublish(t *testing.T) {
	broker := NewBroker(slog.Default())

	// Subscribing from inside a callback must not deadlock.
	broker.Subscribe(SubscriberFunc{ID: "self-ref", Fn: func(ctx context.Context, r *domain.Round) error {
		broker.Subscribe(SubscriberFunc{ID: "late", Fn: func(ctx context.Context, r *domain.Round) error {
			return nil
		}})
		return nil
	}})

	broker.Publish(context.Background(), &domain.Round{ID: "9"})
}
