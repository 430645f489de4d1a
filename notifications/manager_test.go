package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestManager_OrderUpdateSubscription tests that the Manager forwards order
// updates to every subscriber and drops subscribers once their context is
// canceled.
func TestManager_OrderUpdateSubscription(t *testing.T) {
	t.Parallel()

	mgr := NewManager()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	sub1 := mgr.SubscribeOrderUpdates(ctx1)
	sub2 := mgr.SubscribeOrderUpdates(ctx2)

	require.Equal(t, 2, mgr.NumSubscribers(NotificationTypeOrderUpdate))

	update := &OrderUpdate{
		OrderID:        "order-1",
		PreviousStatus: "created",
		Status:         "accepted",
		Event:          "OnAccept",
		Timestamp:      time.Unix(1, 0),
	}
	mgr.PublishOrderUpdate(update)

	for _, sub := range []<-chan *OrderUpdate{sub1, sub2} {
		select {
		case received := <-sub:
			require.Equal(t, update, received)

		case <-time.After(time.Second):
			t.Fatal("did not receive order update")
		}
	}

	// Cancel the first subscriber, its channel is closed and it is
	// eventually removed.
	cancel1()

	select {
	case _, ok := <-sub1:
		require.False(t, ok)

	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	require.Eventually(t, func() bool {
		return mgr.NumSubscribers(NotificationTypeOrderUpdate) == 1
	}, time.Second, 10*time.Millisecond)

	// Updates still reach the remaining subscriber in order.
	for i := 0; i < 50; i++ {
		mgr.PublishOrderUpdate(&OrderUpdate{
			OrderID: "order-2",
			Status:  "created",
			Event:   string(rune('a' + i%26)),
		})
	}

	for i := 0; i < 50; i++ {
		select {
		case received := <-sub2:
			require.Equal(t, "order-2", received.OrderID)
			require.Equal(t, string(rune('a'+i%26)), received.Event)

		case <-time.After(time.Second):
			t.Fatalf("missing update %d", i)
		}
	}
}
