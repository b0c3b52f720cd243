package mqtt

// queuedMsg stores a serialized message for replay after reconnection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO holding messages while the broker is
// unreachable. When full, the oldest message is dropped. Not safe for
// concurrent use; the caller synchronizes.
type outbox struct {
	buf      []queuedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages dropped since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		buf:      make([]queuedMsg, capacity),
		capacity: capacity,
	}
}

func (o *outbox) enqueue(msg queuedMsg) {
	if o.count == o.capacity {
		// Overwrite the oldest; head already points at it.
		o.dropped++
		o.buf[o.head] = msg
		o.head = (o.head + 1) % o.capacity
		return
	}
	o.buf[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	o.count++
}

// drain returns the queued messages oldest-first and empties the outbox.
// The second return is how many messages were dropped to overflow.
func (o *outbox) drain() ([]queuedMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.count == 0 {
		return nil, dropped
	}

	msgs := make([]queuedMsg, o.count)
	start := (o.head - o.count + o.capacity) % o.capacity
	for i := 0; i < o.count; i++ {
		msgs[i] = o.buf[(start+i)%o.capacity]
	}
	o.count = 0
	o.head = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return o.count
}
