package api

import "testing"

func TestUserEventBrokerRoutesEventsPerUser(t *testing.T) {
	b := newUserEventBroker()
	seller, unsubscribeSeller := b.Subscribe(1)
	buyer, unsubscribeBuyer := b.Subscribe(2)
	defer unsubscribeBuyer()

	if got := b.streams(); got != 2 {
		t.Fatalf("expected 2 streams, got %d", got)
	}

	b.Publish(1, "notification.created", map[string]string{"title": "İlanınız yayında"})
	select {
	case ev := <-seller:
		if ev.Type != "notification.created" || ev.UserID != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected seller to receive the event")
	}
	select {
	case ev := <-buyer:
		t.Fatalf("buyer should not receive seller events, got %+v", ev)
	default:
	}

	unsubscribeSeller()
	if got := b.streams(); got != 1 {
		t.Fatalf("expected 1 stream after unsubscribe, got %d", got)
	}
	b.Publish(1, "notification.created", nil)
}

func TestUserEventBrokerDropsEventsForSlowConsumers(t *testing.T) {
	b := newUserEventBroker()
	events, unsubscribe := b.Subscribe(7)
	defer unsubscribe()

	for i := 0; i < 100; i++ {
		b.Publish(7, "message.created", i)
	}
	if got := len(events); got != cap(events) {
		t.Fatalf("expected buffer to be full at %d, got %d", cap(events), got)
	}
}
