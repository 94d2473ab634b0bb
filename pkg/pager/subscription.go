package pager

import "sync"

// SubscriptionID identifies a registered listener.
// It is returned by Subscribe and must be passed to Unsubscribe.
type SubscriptionID uint64

// Listener is invoked after every controller state change.
type Listener func()

type subscriber struct {
	id SubscriptionID
	fn Listener
}

// subscribers is an ordered listener list. Listeners are called in
// registration order.
type subscribers struct {
	mu     sync.Mutex
	list   []subscriber
	nextID SubscriptionID
}

func (s *subscribers) add(fn Listener) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.list = append(s.list, subscriber{id: s.nextID, fn: fn})
	return s.nextID
}

func (s *subscribers) remove(id SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscribers) clear() {
	s.mu.Lock()
	s.list = nil
	s.mu.Unlock()
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// notify calls every listener outside the lock so a listener may
// subscribe or unsubscribe while being notified.
func (s *subscribers) notify() {
	s.mu.Lock()
	snapshot := make([]Listener, len(s.list))
	for i, sub := range s.list {
		snapshot[i] = sub.fn
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn()
	}
}
