package processor

import (
	"sync"

	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/types"
)

// Event describes one status transition observed by the processor.
type Event struct {
	PaymentID string
	OldStatus types.PaymentStatus
	NewStatus types.PaymentStatus
	Record    types.PaymentRecord
	// Err carries the forwarding failure cause on forwarding_failed events.
	Err error
}

// PaymentListener receives lifecycle notifications. Every transition fires
// OnStatusChange; terminal transitions additionally fire their dedicated
// callback. Delivery is best-effort: a panicking listener is recovered and
// a listener that stops draining its queue has events dropped, so one
// misbehaving subscriber can neither block nor crash the polling loop.
type PaymentListener interface {
	OnStatusChange(id string, oldStatus, newStatus types.PaymentStatus)
	OnConfirmed(record types.PaymentRecord)
	OnExpired(id string)
	OnForwardingFailed(id string, err error)
}

// ListenerFuncs adapts plain functions to PaymentListener. Nil fields are
// skipped.
type ListenerFuncs struct {
	StatusChange     func(id string, oldStatus, newStatus types.PaymentStatus)
	Confirmed        func(record types.PaymentRecord)
	Expired          func(id string)
	ForwardingFailed func(id string, err error)
}

func (l ListenerFuncs) OnStatusChange(id string, oldStatus, newStatus types.PaymentStatus) {
	if l.StatusChange != nil {
		l.StatusChange(id, oldStatus, newStatus)
	}
}

func (l ListenerFuncs) OnConfirmed(record types.PaymentRecord) {
	if l.Confirmed != nil {
		l.Confirmed(record)
	}
}

func (l ListenerFuncs) OnExpired(id string) {
	if l.Expired != nil {
		l.Expired(id)
	}
}

func (l ListenerFuncs) OnForwardingFailed(id string, err error) {
	if l.ForwardingFailed != nil {
		l.ForwardingFailed(id, err)
	}
}

const subscriberBuffer = 64

// dispatcher fans events out to subscribers. Each subscriber owns a
// buffered queue drained by its own goroutine, so delivery to one cannot
// stall delivery to another or the publisher.
type dispatcher struct {
	log logger.Logger

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	listener PaymentListener
	queue    chan Event
	done     chan struct{}
}

func newDispatcher(log logger.Logger) *dispatcher {
	return &dispatcher{
		log:  log,
		subs: make(map[int]*subscriber),
	}
}

func (d *dispatcher) Add(l PaymentListener) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.log.Warn("listener registered after close, ignoring", nil)
		return -1
	}

	d.nextID++
	id := d.nextID
	sub := &subscriber{
		listener: l,
		queue:    make(chan Event, subscriberBuffer),
		done:     make(chan struct{}),
	}
	d.subs[id] = sub
	go sub.run(d.log)
	return id
}

func (d *dispatcher) Remove(id int) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()

	if ok {
		close(sub.queue)
		<-sub.done
	}
}

// Publish enqueues the event for every subscriber, dropping it for any
// subscriber whose queue is full.
func (d *dispatcher) Publish(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, sub := range d.subs {
		select {
		case sub.queue <- ev:
		default:
			d.log.Warn("listener queue full, dropping event", map[string]any{
				"listener":  id,
				"paymentId": ev.PaymentID,
				"status":    ev.NewStatus.String(),
			})
		}
	}
}

// Close stops all subscriber goroutines after their queues drain.
func (d *dispatcher) Close() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[int]*subscriber)
	d.closed = true
	d.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
	}
	for _, sub := range subs {
		<-sub.done
	}
}

func (s *subscriber) run(log logger.Logger) {
	defer close(s.done)
	for ev := range s.queue {
		s.deliver(ev, log)
	}
}

func (s *subscriber) deliver(ev Event, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", map[string]any{
				"paymentId": ev.PaymentID,
				"status":    ev.NewStatus.String(),
				"panic":     r,
			})
		}
	}()

	s.listener.OnStatusChange(ev.PaymentID, ev.OldStatus, ev.NewStatus)

	switch ev.NewStatus {
	case types.StatusConfirmed:
		s.listener.OnConfirmed(ev.Record)
	case types.StatusExpired:
		s.listener.OnExpired(ev.PaymentID)
	case types.StatusForwardingFailed:
		s.listener.OnForwardingFailed(ev.PaymentID, ev.Err)
	}
}
