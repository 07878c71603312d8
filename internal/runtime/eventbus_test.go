package runtime

import (
	"sync"
	"testing"
	"time"
)

func TestEventBus_Subscribe(t *testing.T) {
	eb := NewEventBus()
	captured, duplicate := 0, 0

	eb.Subscribe(EventFrameCaptured, func(e Event) { captured++ })
	eb.Subscribe(EventFrameDuplicate, func(e Event) { duplicate++ })

	eb.Publish(Event{Type: EventFrameCaptured})
	eb.Publish(Event{Type: EventFrameCaptured})

	if captured != 2 {
		t.Errorf("expected 2 calls, got %d", captured)
	}
	if duplicate != 0 {
		t.Error("handler for another type should not be called")
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	eb := NewEventBus()
	var seen []EventType

	eb.SubscribeAll(func(e Event) { seen = append(seen, e.Type) })

	eb.Publish(Event{Type: EventFrameCaptured})
	eb.Publish(Event{Type: EventRecordAppended})
	eb.Publish(Event{Type: EventSessionComplete})

	if len(seen) != 3 || seen[2] != EventSessionComplete {
		t.Errorf("unexpected events %v", seen)
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus()
	var received Event
	eb.Subscribe(EventFrameCaptured, func(e Event) { received = e })

	before := time.Now()
	eb.Publish(Event{Type: EventFrameCaptured, SessionID: "s1"})
	if received.Timestamp.Before(before) || received.SessionID != "s1" {
		t.Errorf("unexpected event %+v", received)
	}

	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	eb.Publish(Event{Type: EventFrameCaptured, Timestamp: fixed})
	if !received.Timestamp.Equal(fixed) {
		t.Error("explicit timestamp should be kept")
	}
}

func TestEventBus_SubscribeFromHandler(t *testing.T) {
	eb := NewEventBus()
	late := 0
	eb.Subscribe(EventFrameCaptured, func(e Event) {
		eb.Subscribe(EventRecordAppended, func(Event) { late++ })
	})

	done := make(chan struct{})
	go func() {
		eb.Publish(Event{Type: EventFrameCaptured})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish deadlocked")
	}

	eb.Publish(Event{Type: EventRecordAppended})
	if late != 1 {
		t.Errorf("expected late handler to run once, got %d", late)
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	eb := NewEventBus()
	var count int
	var mu sync.Mutex

	eb.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Publish(Event{Type: EventFrameCaptured})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 100 {
		t.Errorf("expected 100 events, got %d", count)
	}
}

func TestStopSignal(t *testing.T) {
	s := NewStopSignal()
	if s.Stopped() {
		t.Fatal("expected fresh signal to be clear")
	}
	s.Stop()
	s.Stop()
	if !s.Stopped() {
		t.Fatal("expected signal to be raised")
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected Done to be closed")
	}
}
