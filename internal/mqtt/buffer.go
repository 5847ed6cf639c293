package mqtt

import "log"

// message is a serialized MQTT message held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// pending is a bounded FIFO holding messages captured while the broker
// was unreachable. On overflow the oldest message is dropped, so after
// a long outage the most recent readings survive.
// Not safe for concurrent use; the caller must synchronize.
type pending struct {
	msgs    []message
	max     int
	dropped int // messages lost since the last drain
}

func newPending(max int) *pending {
	return &pending{max: max}
}

func (q *pending) add(m message) {
	if len(q.msgs) == q.max {
		if q.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", q.max)
		}
		q.dropped++
		copy(q.msgs, q.msgs[1:])
		q.msgs[len(q.msgs)-1] = m
		return
	}
	q.msgs = append(q.msgs, m)
}

// drain hands over all buffered messages, oldest first, and empties the
// queue.
func (q *pending) drain() []message {
	msgs := q.msgs
	q.msgs = nil
	q.dropped = 0
	return msgs
}

func (q *pending) len() int {
	return len(q.msgs)
}
