package fsm

import (
	"context"
	"sync"
	"time"
)

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Notification)

// Notify implements the Observer interface.
func (f ObserverFunc) Notify(n Notification) {
	f(n)
}

// CachedObserver is an observer that caches all states and transitions of
// the observed state machine.
type CachedObserver struct {
	lastNotification    Notification
	cachedNotifications *FixedSizeSlice[Notification]

	notificationCond *sync.Cond
	notificationMx   sync.Mutex
}

// NewCachedObserver creates a new cached observer with the given maximum
// number of cached notifications.
func NewCachedObserver(maxElements int) *CachedObserver {
	observer := &CachedObserver{
		cachedNotifications: NewFixedSizeSlice[Notification](
			maxElements,
		),
	}
	observer.notificationCond = sync.NewCond(&observer.notificationMx)

	return observer
}

// Notify implements the Observer interface.
func (c *CachedObserver) Notify(notification Notification) {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	c.cachedNotifications.Add(notification)
	c.lastNotification = notification
	c.notificationCond.Broadcast()
}

// GetCachedNotifications returns a copy of the cached notifications.
func (c *CachedObserver) GetCachedNotifications() []Notification {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	return c.cachedNotifications.Get()
}

// LastNotification returns the most recent notification.
func (c *CachedObserver) LastNotification() Notification {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	return c.lastNotification
}

// Visited returns the sequence of states the machine entered, oldest first.
func (c *CachedObserver) Visited() []StateType {
	notifications := c.GetCachedNotifications()

	states := make([]StateType, 0, len(notifications))
	for _, n := range notifications {
		states = append(states, n.NextState)
	}

	return states
}

// WaitForState waits until the observed machine reaches one of the given
// states or the timeout expires. If abortOnError is set, an action error
// reported before the state is reached is returned right away.
func (c *CachedObserver) WaitForState(ctx context.Context,
	timeout time.Duration, abortOnError bool, states ...StateType) error {

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan error, 1)

	go func() {
		c.notificationMx.Lock()
		defer c.notificationMx.Unlock()

		for {
			for _, state := range states {
				if c.lastNotification.NextState == state {
					ch <- nil
					return
				}
			}

			lastErr := c.lastNotification.LastActionError
			if abortOnError && lastErr != nil {
				ch <- lastErr
				return
			}

			if timeoutCtx.Err() != nil {
				return
			}

			c.notificationCond.Wait()
		}
	}()

	// Wake the waiter once the context is done so it can exit.
	go func() {
		<-timeoutCtx.Done()

		c.notificationMx.Lock()
		c.notificationCond.Broadcast()
		c.notificationMx.Unlock()
	}()

	select {
	case err := <-ch:
		return err

	case <-timeoutCtx.Done():
		var expected StateType
		if len(states) > 0 {
			expected = states[0]
		}

		return NewErrWaitingForStateTimeout(expected)
	}
}

// FixedSizeSlice is a slice with a fixed size.
type FixedSizeSlice[T any] struct {
	data   []T
	maxLen int

	sync.Mutex
}

// NewFixedSizeSlice initializes a new FixedSlice with a given maximum length.
func NewFixedSizeSlice[T any](maxLen int) *FixedSizeSlice[T] {
	return &FixedSizeSlice[T]{
		data:   make([]T, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add appends a new element to the slice. If the slice reaches its maximum
// length, the first element is removed.
func (fs *FixedSizeSlice[T]) Add(element T) {
	fs.Lock()
	defer fs.Unlock()

	if len(fs.data) == fs.maxLen {
		fs.data = fs.data[1:]
	}
	fs.data = append(fs.data, element)
}

// Get returns a copy of the slice.
func (fs *FixedSizeSlice[T]) Get() []T {
	fs.Lock()
	defer fs.Unlock()

	data := make([]T, len(fs.data))
	copy(data, fs.data)

	return data
}
