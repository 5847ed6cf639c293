package mqtt

import (
	"fmt"
	"testing"
)

func msg(i int) message {
	return message{topic: TopicReadings, payload: []byte(fmt.Sprintf("m%d", i))}
}

func TestPendingDrainEmpty(t *testing.T) {
	q := newPending(10)
	if got := q.drain(); len(got) != 0 {
		t.Errorf("drain of empty queue returned %d messages", len(got))
	}
}

func TestPendingOrder(t *testing.T) {
	q := newPending(10)
	for i := 0; i < 3; i++ {
		q.add(msg(i))
	}
	if q.len() != 3 {
		t.Errorf("len = %d, want 3", q.len())
	}

	got := q.drain()
	for i, m := range got {
		if want := fmt.Sprintf("m%d", i); string(m.payload) != want {
			t.Errorf("message %d = %s, want %s", i, m.payload, want)
		}
	}
	if q.len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.len())
	}
}

func TestPendingOverflowDropsOldest(t *testing.T) {
	q := newPending(3)
	for i := 0; i < 5; i++ {
		q.add(msg(i))
	}

	got := q.drain()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// m0 and m1 were dropped; the newest three survive in order.
	for i, m := range got {
		if want := fmt.Sprintf("m%d", i+2); string(m.payload) != want {
			t.Errorf("message %d = %s, want %s", i, m.payload, want)
		}
	}
}

func TestPendingReuseAfterDrain(t *testing.T) {
	q := newPending(2)
	q.add(msg(0))
	q.add(msg(1))
	q.add(msg(2)) // overflow
	q.drain()

	q.add(msg(3))
	got := q.drain()
	if len(got) != 1 || string(got[0].payload) != "m3" {
		t.Errorf("after reuse: %v", got)
	}
}
