package stomp

import (
	"sync"

	"github.com/go-stomp/stomp/v3/frame"
)

// Message is a MESSAGE frame delivered to a subscription.
type Message struct {
	Destination  string
	Subscription string
	ContentType  string
	Body         []byte
}

// Handler receives messages for one subscription. Handlers run on the
// connection's read goroutine, one at a time, in delivery order.
type Handler func(msg Message)

// dispatcher routes MESSAGE frames to handlers by subscription id.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string]Handler)}
}

// register associates a handler with a subscription id, replacing any
// earlier one.
func (d *dispatcher) register(id string, h Handler) {
	d.mu.Lock()
	d.handlers[id] = h
	d.mu.Unlock()
}

func (d *dispatcher) unregister(id string) {
	d.mu.Lock()
	delete(d.handlers, id)
	d.mu.Unlock()
}

// dispatch delivers f and reports whether a handler took it.
func (d *dispatcher) dispatch(f *frame.Frame) bool {
	id := f.Header.Get(hdrSubscription)
	d.mu.RLock()
	h, ok := d.handlers[id]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	h(Message{
		Destination:  f.Header.Get(hdrDestination),
		Subscription: id,
		ContentType:  f.Header.Get(hdrContentType),
		Body:         f.Body,
	})
	return true
}

func (d *dispatcher) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}
