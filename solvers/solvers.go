package solvers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/lightningnetwork/lnd/clock"
)

var (
	// ErrDuplicateWebhook is returned when a webhook url is already used by
	// another solver.
	ErrDuplicateWebhook = errors.New("webhook url already registered")

	// ErrAlreadyRegistered is returned when a wallet address is already
	// registered with a different webhook url.
	ErrAlreadyRegistered = errors.New("solver already registered")

	// ErrSolverNotFound is returned when no solver is registered for a
	// wallet address.
	ErrSolverNotFound = errors.New("solver not found")

	// ErrInvalidSolver is returned for malformed registrations.
	ErrInvalidSolver = errors.New("invalid solver")
)

// Solver is a registered resolver.
type Solver struct {
	// WalletAddress identifies the resolver on chain.
	WalletAddress string

	// WebhookURL is the base url notifications are posted to.
	WebhookURL string

	// RegisteredAt is the time of registration.
	RegisteredAt time.Time
}

// Recipient returns the notification recipient of the solver.
func (s *Solver) Recipient() notifications.Recipient {
	return notifications.Recipient{
		Address: s.WalletAddress,
		URL:     s.WebhookURL,
	}
}

// Store persists solvers.
type Store interface {
	// AddSolver stores a new solver. It fails with ErrDuplicateWebhook or
	// ErrAlreadyRegistered on conflicts.
	AddSolver(ctx context.Context, solver *Solver) error

	// GetSolver returns the solver with the wallet address or
	// ErrSolverNotFound.
	GetSolver(ctx context.Context, walletAddress string) (*Solver, error)

	// ListSolvers returns all solvers in registration order.
	ListSolvers(ctx context.Context) ([]*Solver, error)

	// RemoveSolver deletes the solver or returns ErrSolverNotFound.
	RemoveSolver(ctx context.Context, walletAddress string) error
}

// Registry manages the registered resolvers.
type Registry struct {
	store Store
	clock clock.Clock
}

// NewRegistry creates a registry on top of the store.
func NewRegistry(store Store, clock clock.Clock) *Registry {
	return &Registry{
		store: store,
		clock: clock,
	}
}

// Register adds a solver. Registering the same wallet with the same webhook
// again is a no-op.
func (r *Registry) Register(ctx context.Context, walletAddress,
	webhookURL string) (*Solver, error) {

	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, fmt.Errorf("%w: missing wallet address",
			ErrInvalidSolver)
	}

	normalized, err := NormalizeWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetSolver(ctx, walletAddress)
	switch {
	case err == nil && existing.WebhookURL == normalized:
		return existing, nil

	case err == nil:
		return nil, fmt.Errorf("%w: %v", ErrAlreadyRegistered,
			walletAddress)

	case !errors.Is(err, ErrSolverNotFound):
		return nil, err
	}

	solver := &Solver{
		WalletAddress: walletAddress,
		WebhookURL:    normalized,
		RegisteredAt:  r.clock.Now().UTC(),
	}
	if err := r.store.AddSolver(ctx, solver); err != nil {
		return nil, err
	}

	log.Infof("Registered solver %v with webhook %v", walletAddress,
		normalized)

	return solver, nil
}

// Remove deregisters a solver.
func (r *Registry) Remove(ctx context.Context, walletAddress string) error {
	if err := r.store.RemoveSolver(ctx, walletAddress); err != nil {
		return err
	}

	log.Infof("Removed solver %v", walletAddress)

	return nil
}

// GetByWallet returns the solver registered for the wallet address.
func (r *Registry) GetByWallet(ctx context.Context,
	walletAddress string) (*Solver, error) {

	return r.store.GetSolver(ctx, walletAddress)
}

// ListSolvers returns all registered solvers.
func (r *Registry) ListSolvers(ctx context.Context) ([]*Solver, error) {
	return r.store.ListSolvers(ctx)
}

// IsResolver returns true if the address belongs to a registered solver.
func (r *Registry) IsResolver(ctx context.Context,
	address string) (bool, error) {

	_, err := r.store.GetSolver(ctx, address)
	switch {
	case err == nil:
		return true, nil

	case errors.Is(err, ErrSolverNotFound):
		return false, nil

	default:
		return false, err
	}
}

// Recipients returns the notification recipients of all solvers.
func (r *Registry) Recipients(ctx context.Context) (
	[]notifications.Recipient, error) {

	all, err := r.store.ListSolvers(ctx)
	if err != nil {
		return nil, err
	}

	recipients := make([]notifications.Recipient, 0, len(all))
	for _, s := range all {
		recipients = append(recipients, s.Recipient())
	}

	return recipients, nil
}

// NormalizeWebhookURL validates the url and returns its canonical form, with
// lower case scheme and host and without trailing slash, query or fragment.
func NormalizeWebhookURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSolver, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: webhook url must be http(s), got %q",
			ErrInvalidSolver, raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%w: webhook url %q has no host",
			ErrInvalidSolver, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
