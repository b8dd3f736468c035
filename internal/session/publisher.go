package session

import "sync"

const defaultSubscriberCapacity = 16

// Subscription delivers snapshots published after Subscribe, starting with
// the snapshot current at subscription time.
type Subscription struct {
	Snapshots <-chan Snapshot
	cancel    func()
}

// Close terminates the subscription and closes its channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// publisher fans snapshots out to bounded subscriber channels. A slow reader
// loses intermediate progress snapshots, never terminal ones.
type publisher struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	capacity    int
	logger      Logger
}

func newPublisher(capacity int, logger Logger) *publisher {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &publisher{
		subscribers: map[*subscriber]struct{}{},
		capacity:    capacity,
		logger:      logger,
	}
}

func (p *publisher) subscribe(current Snapshot) Subscription {
	sub := newSubscriber(p.capacity, p.logger)
	p.mu.Lock()
	p.subscribers[sub] = struct{}{}
	sub.deliver(current)
	p.mu.Unlock()
	return Subscription{
		Snapshots: sub.ch,
		cancel: func() {
			p.remove(sub)
		},
	}
}

func (p *publisher) publish(snap Snapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for sub := range p.subscribers {
		sub.deliver(snap.Clone())
	}
}

func (p *publisher) remove(sub *subscriber) {
	p.mu.Lock()
	delete(p.subscribers, sub)
	p.mu.Unlock()
	sub.close()
}

func (p *publisher) closeAll() {
	p.mu.Lock()
	subs := p.subscribers
	p.subscribers = map[*subscriber]struct{}{}
	p.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

type subscriber struct {
	ch     chan Snapshot
	logger Logger
	mu     sync.Mutex
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	return &subscriber{ch: make(chan Snapshot, capacity), logger: logger}
}

func (s *subscriber) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	// Full: pull everything buffered, drop the oldest non-terminal snapshot
	// and put the rest back in order.
	pending := make([]Snapshot, 0, cap(s.ch)+1)
	for drained := false; !drained; {
		select {
		case queued := <-s.ch:
			pending = append(pending, queued)
		default:
			drained = true
		}
	}
	pending = append(pending, snap)
	drop := 0
	for i, queued := range pending {
		if !queued.Terminal() {
			drop = i
			break
		}
	}
	s.logDrop(pending[drop])
	pending = append(pending[:drop], pending[drop+1:]...)
	for _, queued := range pending {
		select {
		case s.ch <- queued:
		default:
			s.logDrop(queued)
		}
	}
}

func (s *subscriber) logDrop(snap Snapshot) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("session: dropped snapshot seq=%d status=%s (subscriber queue full)", snap.Seq, snap.Status)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
