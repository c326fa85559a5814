package events

import (
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(EventOrderCreated, 1)
	b, unsubB := bus.Subscribe(EventOrderCreated, 1)
	defer unsubA()
	defer unsubB()

	bus.Publish(EventOrderCreated, "payload")

	for name, ch := range map[string]<-chan any{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got != "payload" {
				t.Fatalf("%s: got %v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no message", name)
		}
	}
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderClosed, 1)
	defer unsub()

	bus.Publish(EventOrderCreated, "open")

	select {
	case got := <-ch:
		t.Fatalf("unexpected message %v", got)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventPriceTick, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// second publish would block on an unbuffered send; it must drop
		bus.Publish(EventPriceTick, 1)
		bus.Publish(EventPriceTick, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventBotError, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}

	// publishing after unsubscribe must not panic
	bus.Publish(EventBotError, BotError{Reason: "x"})
}
