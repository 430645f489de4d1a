package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, metrics *Metrics) *WebhookNotifier {
	t.Helper()

	n := NewWebhookNotifier(&WebhookConfig{
		RequestTimeout:  time.Second,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Metrics:         metrics,
	})
	n.Start()
	t.Cleanup(n.Stop)

	return n
}

func waitResults(t *testing.T, ch <-chan []DeliveryResult) []DeliveryResult {
	t.Helper()

	select {
	case results := <-ch:
		return results

	case <-time.After(5 * time.Second):
		t.Fatal("webhook delivery did not complete")
		return nil
	}
}

// TestWebhookPerRecipientIsolation asserts that every recipient is served
// independently: a healthy endpoint receives the webhook even though another
// endpoint rejects it and a third one only accepts after a retry.
func TestWebhookPerRecipientIsolation(t *testing.T) {
	t.Parallel()

	var (
		received  atomic.Value
		flakyHits int32
	)

	healthy := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/secret", r.URL.Path)

			var payload SecretPayload
			err := json.NewDecoder(r.Body).Decode(&payload)
			require.NoError(t, err)

			received.Store(payload)
			w.WriteHeader(http.StatusOK)
		},
	))
	defer healthy.Close()

	rejecting := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unknown order", http.StatusBadRequest)
		},
	))
	defer rejecting.Close()

	flaky := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&flakyHits, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer flaky.Close()

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	n := newTestNotifier(t, metrics)

	recipients := []Recipient{
		{Address: "healthy", URL: healthy.URL + "/"},
		{Address: "rejecting", URL: rejecting.URL},
		{Address: "flaky", URL: flaky.URL},
	}

	done := make(chan []DeliveryResult, 1)
	n.NotifySecret("order-1", "00ff", recipients, func(
		results []DeliveryResult) {

		done <- results
	})

	results := waitResults(t, done)
	require.Len(t, results, 3)

	require.True(t, results[0].Delivered())
	require.Equal(t, 1, results[0].Attempts)
	require.Equal(t, SecretPayload{OrderID: "order-1", Secret: "00ff"},
		received.Load())

	require.False(t, results[1].Delivered())
	require.ErrorIs(t, results[1].Err, ErrDelivery)
	require.Equal(t, 1, results[1].Attempts)

	var delErr *DeliveryError
	require.ErrorAs(t, results[1].Err, &delErr)
	require.Equal(t, http.StatusBadRequest, delErr.StatusCode)
	require.Equal(t, "rejecting", delErr.Recipient.Address)

	require.True(t, results[2].Delivered())
	require.Equal(t, 3, results[2].Attempts)

	require.Equal(t, 2, Delivered(results))

	require.Equal(t, float64(5), testutil.ToFloat64(
		metrics.attemptCount.WithLabelValues("secret"),
	))
	require.Equal(t, float64(1), testutil.ToFloat64(
		metrics.deliveryCount.WithLabelValues("secret", "failure"),
	))
}

// TestWebhookUnreachable asserts that an unreachable endpoint is reported as
// a delivery error once the retry budget is exhausted.
func TestWebhookUnreachable(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	n := NewWebhookNotifier(&WebhookConfig{
		RequestTimeout:  100 * time.Millisecond,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxElapsedTime:  100 * time.Millisecond,
	})
	n.Start()
	defer n.Stop()

	done := make(chan []DeliveryResult, 1)
	n.NotifyNewOrder("order-2", map[string]string{"id": "order-2"},
		[]Recipient{{Address: "down", URL: url}},
		func(results []DeliveryResult) {
			done <- results
		},
	)

	results := waitResults(t, done)
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, ErrDelivery)
	require.GreaterOrEqual(t, results[0].Attempts, 2)
}

// TestWebhookStopped asserts webhooks handed to a stopped notifier complete
// with an error instead of blocking.
func TestWebhookStopped(t *testing.T) {
	t.Parallel()

	n := NewWebhookNotifier(&WebhookConfig{})
	n.Start()
	n.Stop()

	done := make(chan []DeliveryResult, 1)
	n.NotifySecret("order-3", "00", []Recipient{{URL: "http://x"}},
		func(results []DeliveryResult) {
			done <- results
		},
	)

	results := waitResults(t, done)
	require.ErrorIs(t, results[0].Err, ErrNotifierStopped)
}
