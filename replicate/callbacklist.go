package replicate

import (
	"sync"
)

// CallbackList is a mutex-guarded list of callbacks whose Get returns a copy,
// grounded in the teacher's util.go CallbackList[T] (there left as
// unfinished pseudocode) and its working usage sites in
// transfer_contract_manager.go (contractErrorCallbacks) and
// ip_remote_multi_client_monitor.go (monitorEventCallbacks). Callbacks are
// keyed by an opaque id returned from Add so a callback value itself never
// needs to be comparable.
type CallbackList[T any] struct {
	mutex     sync.Mutex
	nextId    int
	callbacks map[int]T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: map[int]T{},
	}
}

// Add registers callback and returns an id that Remove accepts.
func (l *CallbackList[T]) Add(callback T) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	id := l.nextId
	l.nextId++
	l.callbacks[id] = callback
	return id
}

func (l *CallbackList[T]) Remove(id int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.callbacks, id)
}

// Get returns a snapshot slice of the currently registered callbacks, safe
// to range over without holding the lock.
func (l *CallbackList[T]) Get() []T {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := make([]T, 0, len(l.callbacks))
	for _, cb := range l.callbacks {
		out = append(out, cb)
	}
	return out
}
