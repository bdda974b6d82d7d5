// Package eventbus is a small typed publish/subscribe hub for the client
// caches and the chat flow.
package eventbus

import "sync"

// ConnectionChanged fires when the active connection id changes.
type ConnectionChanged struct {
	ConnectionID string
}

// CloseDropdown asks every open dropdown except Source to close.
type CloseDropdown struct {
	Source string
}

// AuthChanged fires on login, logout and session restore. UID is empty after logout.
type AuthChanged struct {
	UID   string
	Email string
}

// Topic delivers values of one type to its subscribers, synchronously and in
// subscription order.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

// Subscribe registers fn and returns a function that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.order = append(t.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			for i, v := range t.order {
				if v == id {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every subscriber with v. Subscribers may unsubscribe while
// being called.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	fns := make([]func(T), 0, len(t.order))
	for _, id := range t.order {
		fns = append(fns, t.subs[id])
	}
	t.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of live subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Bus groups the application topics.
type Bus struct {
	ConnectionChanged Topic[ConnectionChanged]
	CloseDropdown     Topic[CloseDropdown]
	AuthChanged       Topic[AuthChanged]
}

func New() *Bus {
	return &Bus{}
}
