package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/queue"
)

// NotificationType is the type of notification that the manager can handle.
type NotificationType int

const (
	// NotificationTypeUnknown is the default notification type.
	NotificationTypeUnknown NotificationType = iota

	// NotificationTypeOrderUpdate is the notification type for order
	// status updates.
	NotificationTypeOrderUpdate
)

const (
	// subscriberQueueSize is the initial buffer of a subscriber's queue.
	subscriberQueueSize = 20
)

// OrderUpdate is published every time an order changes status.
type OrderUpdate struct {
	// OrderID is the id of the order.
	OrderID string

	// PreviousStatus is the status the order was in before the update.
	PreviousStatus string

	// Status is the status of the order after the update.
	Status string

	// Event is the event that caused the update.
	Event string

	// Timestamp is the time of the update.
	Timestamp time.Time
}

// Manager fans out order updates to in-process subscribers. Publishing never
// blocks on slow subscribers, every subscriber is served from its own
// unbounded queue.
type Manager struct {
	subscribers map[NotificationType]map[uint64]*subscriber
	nextSubID   uint64
	sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[NotificationType]map[uint64]*subscriber),
	}
}

type subscriber struct {
	subCtx context.Context
	queue  *queue.ConcurrentQueue
}

// SubscribeOrderUpdates subscribes to all order updates. The returned channel
// is closed once the context is canceled.
func (m *Manager) SubscribeOrderUpdates(ctx context.Context,
) <-chan *OrderUpdate {

	notifChan := make(chan *OrderUpdate, 1)

	sub := &subscriber{
		subCtx: ctx,
		queue:  queue.NewConcurrentQueue(subscriberQueueSize),
	}
	sub.queue.Start()

	id := m.addSubscriber(NotificationTypeOrderUpdate, sub)

	// Forward queued updates until the subscriber goes away.
	go func() {
		defer close(notifChan)
		defer func() {
			m.removeSubscriber(NotificationTypeOrderUpdate, id)
			sub.queue.Stop()
		}()

		for {
			select {
			case item := <-sub.queue.ChanOut():
				update, ok := item.(*OrderUpdate)
				if !ok {
					continue
				}

				select {
				case notifChan <- update:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return notifChan
}

// PublishOrderUpdate forwards the update to all order update subscribers.
func (m *Manager) PublishOrderUpdate(update *OrderUpdate) {
	m.Lock()
	defer m.Unlock()

	log.Tracef("Publishing update of order %v: %v -> %v",
		update.OrderID, update.PreviousStatus, update.Status)

	for _, sub := range m.subscribers[NotificationTypeOrderUpdate] {
		if sub.subCtx.Err() != nil {
			continue
		}

		sub.queue.ChanIn() <- update
	}
}

// NumSubscribers returns the number of active subscribers of the given type.
func (m *Manager) NumSubscribers(notifType NotificationType) int {
	m.Lock()
	defer m.Unlock()

	return len(m.subscribers[notifType])
}

// addSubscriber adds a subscriber to the manager.
func (m *Manager) addSubscriber(notifType NotificationType,
	sub *subscriber) uint64 {

	m.Lock()
	defer m.Unlock()

	if m.subscribers[notifType] == nil {
		m.subscribers[notifType] = make(map[uint64]*subscriber)
	}

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[notifType][id] = sub

	return id
}

// removeSubscriber removes a subscriber from the manager.
func (m *Manager) removeSubscriber(notifType NotificationType, id uint64) {
	m.Lock()
	defer m.Unlock()

	delete(m.subscribers[notifType], id)
}
