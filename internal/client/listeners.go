package client

import "sync"

type listener[T any] struct {
	id int
	fn func(T)
}

// listeners is a subscriber list. add may be called from any goroutine,
// including from inside a callback; emit runs callbacks in registration order.
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	list   []listener[T]
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.list = append(l.list, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ls := range l.list {
		if ls.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	snapshot := l.list
	l.mu.Unlock()
	for _, ls := range snapshot {
		ls.fn(v)
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}
