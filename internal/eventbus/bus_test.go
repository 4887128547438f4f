package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []bool
	done := make(chan struct{})
	b.Subscribe(EventTypeRelayCommand, func(e Event) {
		mu.Lock()
		got = append(got, e.Bool("on"))
		n := len(got)
		mu.Unlock()
		if n == 4 {
			close(done)
		}
	})

	for _, on := range []bool{true, false, true, true} {
		if !b.Publish(Event{Type: EventTypeRelayCommand, Data: map[string]any{"on": on}}) {
			t.Fatal("Publish() dropped event")
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlers not called")
	}
	b.Close(context.Background())

	want := []bool{true, false, true, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := NewWithConfig(1, 1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	b.Subscribe(EventTypeRelayCommand, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	b.Publish(Event{Type: EventTypeRelayCommand})
	<-started
	b.Publish(Event{Type: EventTypeRelayCommand}) // fills the queue

	if b.Publish(Event{Type: EventTypeRelayCommand}) {
		t.Error("expected drop when queue is full")
	}

	close(release)
	b.Close(context.Background())
}

func TestPanickingHandlerDoesNotKillWorker(t *testing.T) {
	b := New()
	done := make(chan struct{})
	calls := 0
	b.Subscribe(EventTypeRelayCommand, func(e Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		close(done)
	})

	b.Publish(Event{Type: EventTypeRelayCommand})
	b.Publish(Event{Type: EventTypeRelayCommand})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	b.Close(context.Background())
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New()
	b.Subscribe(EventTypeRelayCommand, func(Event) {})
	b.Close(context.Background())
	b.Close(context.Background())

	if b.Publish(Event{Type: EventTypeRelayCommand}) {
		t.Error("Publish() after Close should report a drop")
	}
}
