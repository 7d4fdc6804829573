package progress

// Subscriber is one live feed consumer. Its buffer is bounded; when the
// consumer is slower than the coordinator, the oldest buffered events are
// dropped so the coordinator never blocks.
type Subscriber struct {
	ch     chan Event
	closed bool // owned by the coordinator goroutine
}

func newSubscriber(buffer int) *Subscriber {
	return &Subscriber{ch: make(chan Event, buffer)}
}

// Events is the ordered stream of future events. The channel is closed when
// the subscriber is removed.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// offer delivers without blocking, evicting the oldest buffered event on
// overflow. Called only from the coordinator goroutine.
func (s *Subscriber) offer(ev Event) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch: // evict oldest
		default:
		}
	}
}

// close is called by the coordinator goroutine after the subscriber is
// removed from the fan-out set.
func (s *Subscriber) close() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
