package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lightningnetwork/lnd/queue"
)

const (
	// defaultRequestTimeout bounds a single webhook request.
	defaultRequestTimeout = 10 * time.Second

	// defaultMaxElapsedTime bounds all attempts for one recipient.
	defaultMaxElapsedTime = 2 * time.Minute

	// maxResponseBody is the part of an error response body that is kept
	// for diagnostics.
	maxResponseBody = 512
)

var (
	// ErrDelivery is matched by every *DeliveryError.
	ErrDelivery = errors.New("webhook delivery failed")

	// ErrNotifierStopped is reported for webhooks handed to a stopped
	// notifier.
	ErrNotifierStopped = errors.New("notifier stopped")
)

// Kind is the kind of webhook sent to resolvers.
type Kind uint8

const (
	// KindNewOrder announces a freshly submitted order.
	KindNewOrder Kind = iota

	// KindSecret shares a revealed secret.
	KindSecret
)

// Path returns the path appended to a resolver's webhook url.
func (k Kind) Path() string {
	switch k {
	case KindNewOrder:
		return "new-order"

	case KindSecret:
		return "secret"

	default:
		return "unknown"
	}
}

// String returns the path of the kind.
func (k Kind) String() string {
	return k.Path()
}

// Recipient is a resolver endpoint.
type Recipient struct {
	// Address is the wallet address of the resolver.
	Address string

	// URL is the base webhook url of the resolver.
	URL string
}

// Webhook is a typed notification for a set of recipients.
type Webhook struct {
	// Kind selects the endpoint.
	Kind Kind

	// OrderID is the order the webhook is about.
	OrderID string

	// Recipients receive the webhook independently of each other.
	Recipients []Recipient

	// Payload is encoded as the JSON request body.
	Payload interface{}
}

// SecretPayload is the body of a secret webhook.
type SecretPayload struct {
	OrderID string `json:"orderId"`
	Secret  string `json:"secret"`
}

// DeliveryError describes why a webhook could not be delivered to a
// recipient.
type DeliveryError struct {
	Recipient  Recipient
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %v failed: %v", e.Recipient.URL,
			e.Err)
	}

	return fmt.Sprintf("delivery to %v failed with status %d: %v",
		e.Recipient.URL, e.StatusCode, e.Body)
}

// Is allows matching against ErrDelivery.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// Unwrap returns the underlying transport error, if any.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryResult is the outcome of delivering a webhook to one recipient.
type DeliveryResult struct {
	Recipient Recipient
	Attempts  int
	Err       error
}

// Delivered returns true if the recipient acknowledged the webhook.
func (r DeliveryResult) Delivered() bool {
	return r.Err == nil
}

// Delivered counts the successful deliveries in results.
func Delivered(results []DeliveryResult) int {
	var n int
	for _, r := range results {
		if r.Delivered() {
			n++
		}
	}

	return n
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	// Client is the http client used for deliveries.
	Client *http.Client

	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration

	// InitialInterval is the first retry delay.
	InitialInterval time.Duration

	// MaxInterval caps the retry delay.
	MaxInterval time.Duration

	// MaxElapsedTime bounds all attempts for one recipient.
	MaxElapsedTime time.Duration

	// UserAgent is sent with every request if set.
	UserAgent string

	// Metrics is optional.
	Metrics *Metrics
}

// DoneFunc is called with the per-recipient results once a webhook was
// delivered or given up on for every recipient.
type DoneFunc func([]DeliveryResult)

type job struct {
	hook *Webhook
	done DoneFunc
}

// WebhookNotifier delivers webhooks to resolvers. Callers hand webhooks off
// and never wait for delivery; each recipient is served by its own goroutine
// so a failing endpoint does not delay the others.
type WebhookNotifier struct {
	cfg *WebhookConfig

	jobs *queue.ConcurrentQueue

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewWebhookNotifier creates a notifier. Zero config values are replaced by
// defaults.
func NewWebhookNotifier(cfg *WebhookConfig) *WebhookNotifier {
	c := *cfg
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = backoff.DefaultInitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = backoff.DefaultMaxInterval
	}
	if c.MaxElapsedTime == 0 {
		c.MaxElapsedTime = defaultMaxElapsedTime
	}

	return &WebhookNotifier{
		cfg:  &c,
		jobs: queue.NewConcurrentQueue(subscriberQueueSize),
		quit: make(chan struct{}),
	}
}

// Start starts the dispatch loop.
func (n *WebhookNotifier) Start() {
	n.started.Do(func() {
		n.jobs.Start()

		n.wg.Add(1)
		go n.dispatchLoop()
	})
}

// Stop aborts pending deliveries and waits for all goroutines to exit.
func (n *WebhookNotifier) Stop() {
	n.stopped.Do(func() {
		close(n.quit)
		n.wg.Wait()
		n.jobs.Stop()
	})
}

// Notify hands the webhook off for delivery. The optional done callback is
// invoked from a notifier goroutine.
func (n *WebhookNotifier) Notify(hook *Webhook, done DoneFunc) {
	select {
	case n.jobs.ChanIn() <- &job{hook: hook, done: done}:

	case <-n.quit:
		log.Warnf("Dropping %v webhook of order %v: %v", hook.Kind,
			hook.OrderID, ErrNotifierStopped)

		if done != nil {
			results := make([]DeliveryResult, len(hook.Recipients))
			for i, r := range hook.Recipients {
				results[i] = DeliveryResult{
					Recipient: r,
					Err:       ErrNotifierStopped,
				}
			}
			done(results)
		}
	}
}

// NotifyNewOrder announces a new order to the recipients.
func (n *WebhookNotifier) NotifyNewOrder(orderID string, payload interface{},
	recipients []Recipient, done DoneFunc) {

	n.Notify(&Webhook{
		Kind:       KindNewOrder,
		OrderID:    orderID,
		Recipients: recipients,
		Payload:    payload,
	}, done)
}

// NotifySecret shares a revealed secret with the recipients.
func (n *WebhookNotifier) NotifySecret(orderID, secret string,
	recipients []Recipient, done DoneFunc) {

	n.Notify(&Webhook{
		Kind:       KindSecret,
		OrderID:    orderID,
		Recipients: recipients,
		Payload: &SecretPayload{
			OrderID: orderID,
			Secret:  secret,
		},
	}, done)
}

func (n *WebhookNotifier) dispatchLoop() {
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case item := <-n.jobs.ChanOut():
			j, ok := item.(*job)
			if !ok {
				continue
			}

			n.wg.Add(1)
			go func() {
				defer n.wg.Done()

				results := n.deliverAll(ctx, j.hook)
				if j.done != nil {
					j.done(results)
				}
			}()

		case <-n.quit:
			return
		}
	}
}

// deliverAll delivers the webhook to every recipient concurrently and
// collects the outcomes.
func (n *WebhookNotifier) deliverAll(ctx context.Context,
	hook *Webhook) []DeliveryResult {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Abort in-flight retries on shutdown.
	go func() {
		select {
		case <-n.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	body, err := json.Marshal(hook.Payload)
	if err != nil {
		results := make([]DeliveryResult, len(hook.Recipients))
		for i, r := range hook.Recipients {
			results[i] = DeliveryResult{
				Recipient: r,
				Err: &DeliveryError{
					Recipient: r,
					Err:       err,
				},
			}
		}

		return results
	}

	results := make([]DeliveryResult, len(hook.Recipients))

	var wg sync.WaitGroup
	for i, recipient := range hook.Recipients {
		wg.Add(1)
		go func(i int, recipient Recipient) {
			defer wg.Done()

			results[i] = n.deliver(ctx, hook, recipient, body)
		}(i, recipient)
	}
	wg.Wait()

	log.Debugf("Delivered %v webhook of order %v to %d/%d recipients",
		hook.Kind, hook.OrderID, Delivered(results), len(results))

	return results
}

// deliver posts the body to one recipient, retrying transient failures with
// exponential backoff.
func (n *WebhookNotifier) deliver(ctx context.Context, hook *Webhook,
	recipient Recipient, body []byte) DeliveryResult {

	url := strings.TrimRight(recipient.URL, "/") + "/" + hook.Kind.Path()
	result := DeliveryResult{Recipient: recipient}

	operation := func() error {
		result.Attempts++
		n.cfg.Metrics.attempt(hook.Kind)

		err := n.post(ctx, url, body)

		var delErr *DeliveryError
		if errors.As(err, &delErr) {
			delErr.Recipient = recipient

			// Client errors other than rate limiting won't get
			// better by retrying.
			if delErr.StatusCode >= 400 && delErr.StatusCode < 500 &&
				delErr.StatusCode != http.StatusTooManyRequests {

				return backoff.Permanent(delErr)
			}
		}

		return err
	}

	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(n.cfg.InitialInterval),
		backoff.WithMaxInterval(n.cfg.MaxInterval),
		backoff.WithMaxElapsedTime(n.cfg.MaxElapsedTime),
	)
	notify := func(err error, wait time.Duration) {
		log.Debugf("Delivery of %v webhook of order %v to %v failed, "+
			"retrying in %v: %v", hook.Kind, hook.OrderID,
			recipient.URL, wait, err)
	}

	err := backoff.RetryNotify(
		operation, backoff.WithContext(expBackOff, ctx), notify,
	)
	if err != nil {
		var delErr *DeliveryError
		if !errors.As(err, &delErr) {
			err = &DeliveryError{Recipient: recipient, Err: err}
		}

		log.Warnf("Giving up on %v webhook of order %v to %v after %d "+
			"attempt(s): %v", hook.Kind, hook.OrderID,
			recipient.URL, result.Attempts, err)

		result.Err = err
	}

	n.cfg.Metrics.delivered(hook.Kind, result.Err == nil)

	return result
}

// post sends a single request. Non 2xx responses are reported as
// *DeliveryError.
func (n *WebhookNotifier) post(ctx context.Context, url string,
	body []byte) error {

	ctx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(body),
	)
	if err != nil {
		return backoff.Permanent(&DeliveryError{Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", n.cfg.UserAgent)
	}

	resp, err := n.cfg.Client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
}
