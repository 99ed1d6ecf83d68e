package server

import (
	"fmt"
	"sync"
	"testing"
)

func TestHubDeliversInPublishOrder(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	for i := 0; i < 5; i++ {
		if dropped := h.Publish([]byte(fmt.Sprintf("msg-%d", i))); dropped != 0 {
			t.Fatalf("publish #%d dropped %d subscribers", i, dropped)
		}
	}
	for i := 0; i < 5; i++ {
		got := string(<-ch)
		if want := fmt.Sprintf("msg-%d", i); got != want {
			t.Fatalf("message %d = %q, want %q", i, got, want)
		}
	}
}

func TestHubDropsOnlyTheSlowSubscriber(t *testing.T) {
	h := NewHub()

	// Two healthy subscribers drained continuously, one that never reads.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		_, ch := h.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}
	slowID, _ := h.Subscribe()

	totalDropped := 0
	for i := 0; i < subscriberBuffer+2; i++ {
		totalDropped += h.Publish([]byte("event"))
	}
	if totalDropped != 1 {
		t.Fatalf("dropped = %d, want 1", totalDropped)
	}
	if got := h.ClientCount(); got != 2 {
		t.Fatalf("remaining clients = %d, want 2", got)
	}

	// Closing the already-dropped handle must be a no-op.
	h.Unsubscribe(slowID)
	if got := h.ClientCount(); got != 2 {
		t.Fatalf("clients after redundant unsubscribe = %d, want 2", got)
	}

	for _, id := range activeIDs(h) {
		h.Unsubscribe(id)
	}
	wg.Wait()
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	h.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Second unsubscribe of the same handle must not panic.
	h.Unsubscribe(id)
}

func TestHubConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ch := h.Subscribe()
			go func() {
				for range ch {
				}
			}()
			for j := 0; j < 50; j++ {
				h.Publish([]byte("x"))
			}
			h.Unsubscribe(id)
		}()
	}
	wg.Wait()

	if got := h.ClientCount(); got != 0 {
		t.Fatalf("clients after teardown = %d, want 0", got)
	}
}

func activeIDs(h *Hub) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}
