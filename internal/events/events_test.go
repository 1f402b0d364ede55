package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(ItemStatusUpdated, ItemStatusPayload{ItemID: "item-1", Status: "completed"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != ItemStatusUpdated {
				t.Errorf("subscriber %d: Type = %q", i, ev.Type)
			}
			p, ok := ev.Payload.(ItemStatusPayload)
			if !ok {
				t.Fatalf("subscriber %d: payload type %T", i, ev.Payload)
			}
			if p.ItemID != "item-1" {
				t.Errorf("subscriber %d: ItemID = %q", i, p.ItemID)
			}
			if ev.Time.IsZero() {
				t.Errorf("subscriber %d: zero event time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event received", i)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	cancel()

	// The channel is closed; publishing afterwards must not panic.
	b.Publish(CollectionSyncUpdated, CollectionSyncPayload{CollectionID: "col-1"})

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
}

func TestCancelTwiceIsSafe(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()
	cancel()
	cancel() // second cancel must not panic on the closed channel
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe() // nobody reads
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer; extra events are dropped.
		for range 200 {
			b.Publish(ItemSyncUpdated, ItemSyncPayload{ItemID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
