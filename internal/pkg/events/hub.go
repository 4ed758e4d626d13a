package events

import (
	"sync"

	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const defaultBufferSize = 64

// Listener handles one event. Returned errors are logged and counted; they
// never affect other subscribers.
type Listener func(PayEvent) error

// Publisher is the write side of the hub.
type Publisher interface {
	Broadcast(PayEvent)
}

type subscriber struct {
	name     string
	listener Listener
	ch       chan PayEvent
}

// Hub fans PayEvents out to subscribers. Each subscriber gets a buffered
// queue drained by its own goroutine, so Broadcast never waits on a listener.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]*subscriber
	nextID     uint64
	bufferSize int
	closed     bool
	closing    chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a hub. bufferSize <= 0 selects the default.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subs:       make(map[uint64]*subscriber),
		bufferSize: bufferSize,
		closing:    make(chan struct{}),
	}
}

// Subscribe registers listener under name and returns a function that
// removes it. After Close, Subscribe returns a no-op unsubscribe.
func (h *Hub) Subscribe(name string, listener Listener) func() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	h.nextID++
	id := h.nextID
	sub := &subscriber{name: name, listener: listener, ch: make(chan PayEvent, h.bufferSize)}
	h.subs[id] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	go h.pump(sub)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	metrics.Subscribers.Dec()
}

// Broadcast delivers e to every subscriber without blocking. A subscriber
// whose queue is full misses the event.
func (h *Hub) Broadcast(e PayEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	metrics.EventsBroadcast.WithLabelValues(e.Type).Inc()

	for _, sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			metrics.EventsDropped.WithLabelValues(sub.name).Inc()
			log.Warnf("[EventHub] Subscriber %s is slow, dropped %s for %s", sub.name, e.Type, e.ProviderRef)
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Closing is closed when the hub shuts down. Transports use it to end
// long-lived connections.
func (h *Hub) Closing() <-chan struct{} {
	return h.closing
}

// Close stops accepting events, clears all subscribers and waits for their
// queues to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.closing)
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
		metrics.Subscribers.Dec()
	}
	h.mu.Unlock()

	h.wg.Wait()
	log.Info("[EventHub] Closed")
}

func (h *Hub) pump(sub *subscriber) {
	defer h.wg.Done()
	for e := range sub.ch {
		h.deliver(sub, e)
	}
}

func (h *Hub) deliver(sub *subscriber, e PayEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerFailures.WithLabelValues(sub.name).Inc()
			log.Errorf("[EventHub] Listener %s panicked on %s: %v", sub.name, e.Type, r)
		}
	}()
	if err := sub.listener(e); err != nil {
		metrics.ListenerFailures.WithLabelValues(sub.name).Inc()
		log.Warnf("[EventHub] Listener %s failed on %s: %v", sub.name, e.Type, err)
	}
}
