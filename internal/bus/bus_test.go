package bus

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"whatsbridge/internal/domain"
)

func TestQueue_PreservesOrder(t *testing.T) {
	q := NewQueue(4, testEBLogger())
	const total = 50

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Publish(domain.RawEvent{ID: strconv.Itoa(i)})
		}
	}()

	for i := 0; i < total; i++ {
		select {
		case ev := <-q.Events():
			if ev.ID != strconv.Itoa(i) {
				t.Fatalf("expected event %d, got %s", i, ev.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	wg.Wait()
}

func TestQueue_FullQueueBlocksInsteadOfDropping(t *testing.T) {
	q := NewQueue(1, testEBLogger())
	q.Publish(domain.RawEvent{ID: "a"})

	published := make(chan struct{})
	go func() {
		q.Publish(domain.RawEvent{ID: "b"})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if ev := <-q.Events(); ev.ID != "a" {
		t.Fatalf("expected a, got %s", ev.ID)
	}
	<-published
	if ev := <-q.Events(); ev.ID != "b" {
		t.Fatalf("expected b, got %s", ev.ID)
	}
}

func TestQueue_CloseReleasesBlockedPublisher(t *testing.T) {
	q := NewQueue(1, testEBLogger())
	q.Publish(domain.RawEvent{ID: "a"})

	done := make(chan struct{})
	go func() {
		q.Publish(domain.RawEvent{ID: "b"})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close should release a blocked publisher")
	}

	q.Publish(domain.RawEvent{ID: "c"})
	if q.Len() != 1 {
		t.Fatalf("expected only the first event buffered, got %d", q.Len())
	}
}
