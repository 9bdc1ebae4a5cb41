package util

import "sync"

// Observable is a thread-safe value cell whose subscribers are notified
// whenever the value changes. Each subscriber is delivered the current value
// immediately on subscription and then every subsequent change, in order,
// but a slow subscriber only ever sees the latest value (notifications
// are conflated, never queued without bound).
type Observable[T any] struct {
	mu     sync.Mutex
	value  T
	equal  func(a, b T) bool
	nextID int
	subs   map[int]*subscriber[T]
}

type subscriber[T any] struct {
	mu      sync.Mutex
	pending bool
	value   T
	closed  bool
	wake    chan struct{}
	cb      func(T)
}

// NewObservable creates an Observable that uses == to detect changes.
func NewObservable[T comparable](initial T) *Observable[T] {
	return NewObservableFunc(initial, func(a, b T) bool { return a == b })
}

// NewObservableFunc creates an Observable that uses the given function
// to detect changes.
func NewObservableFunc[T any](initial T, equal func(a, b T) bool) *Observable[T] {
	return &Observable[T]{
		value: initial,
		equal: equal,
		subs:  make(map[int]*subscriber[T]),
	}
}

func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores v and notifies subscribers if it differs from the current value.
// Returns true if the value changed.
func (o *Observable[T]) Set(v T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.equal(o.value, v) {
		return false
	}
	o.value = v
	for _, s := range o.subs {
		s.offer(v)
	}
	return true
}

// Update atomically applies fn to the current value.
func (o *Observable[T]) Update(fn func(T) T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := fn(o.value)
	if o.equal(o.value, v) {
		return false
	}
	o.value = v
	for _, s := range o.subs {
		s.offer(v)
	}
	return true
}

// Subscribe registers cb to be called with the current value and with every
// subsequent change. Callbacks for one subscriber are never invoked
// concurrently. The returned function unsubscribes.
func (o *Observable[T]) Subscribe(cb func(T)) func() {
	s := &subscriber[T]{
		wake: make(chan struct{}, 1),
		cb:   cb,
	}
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = s
	s.offer(o.value)
	o.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			s.close()
		})
	}
}

func (s *subscriber[T]) offer(v T) {
	s.mu.Lock()
	s.value = v
	s.pending = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) run() {
	for range s.wake {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if !s.pending {
			s.mu.Unlock()
			continue
		}
		v := s.value
		s.pending = false
		s.mu.Unlock()
		s.cb(v)
	}
}
