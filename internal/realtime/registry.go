package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

// Registry maps names to ordered handler lists. Registration returns a
// disposer, which is the only way to remove a single handler.
//
// Dispatch invokes handlers synchronously, in registration order, outside
// the lock, so handlers may register or dispose freely:
//   - a handler disposed during a dispatch is not invoked later in it
//   - a handler registered during a dispatch is first invoked on the next one
//   - disposing does not wait for a call already running on another goroutine
//
// A panicking handler is recovered and logged; the rest still run.
type Registry[T any] struct {
	logger *logging.Logger

	mu       sync.Mutex
	handlers map[string][]*registration[T] // replaced, never mutated in place
	total    int
}

type registration[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry[T any](logger *logging.Logger) *Registry[T] {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry[T]{
		logger:   logger,
		handlers: make(map[string][]*registration[T]),
	}
}

// Register appends fn to name's handlers. It panics on an empty name or a
// nil fn. The returned disposer removes exactly this registration and may
// be called any number of times.
func (r *Registry[T]) Register(name string, fn func(T)) (dispose func()) {
	if name == "" {
		panic("realtime: Register with empty name")
	}
	if fn == nil {
		panic("realtime: Register with nil handler")
	}

	reg := &registration[T]{fn: fn}
	reg.active.Store(true)

	r.mu.Lock()
	list := r.handlers[name]
	grown := make([]*registration[T], len(list), len(list)+1)
	copy(grown, list)
	r.handlers[name] = append(grown, reg)
	r.total++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(name, reg) })
	}
}

func (r *Registry[T]) remove(name string, reg *registration[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !reg.active.Swap(false) {
		return // already gone via DisposeAll
	}
	list := r.handlers[name]
	kept := make([]*registration[T], 0, len(list))
	for _, other := range list {
		if other != reg {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, name)
	} else {
		r.handlers[name] = kept
	}
	r.total--
}

// Dispatch calls every handler registered for name with v and returns how
// many were invoked.
func (r *Registry[T]) Dispatch(name string, v T) int {
	r.mu.Lock()
	list := r.handlers[name]
	r.mu.Unlock()

	invoked := 0
	for _, reg := range list {
		if !reg.active.Load() {
			continue
		}
		r.invoke(name, reg.fn, v)
		invoked++
	}
	return invoked
}

func (r *Registry[T]) invoke(name string, fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", "name", name, "panic", rec)
		}
	}()
	fn(v)
}

// DisposeAll removes every handler for every name.
func (r *Registry[T]) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.handlers {
		for _, reg := range list {
			reg.active.Store(false)
		}
	}
	r.handlers = make(map[string][]*registration[T])
	r.total = 0
}

// Count returns the number of handlers registered for name.
func (r *Registry[T]) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[name])
}

// Len returns the number of handlers across all names.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
