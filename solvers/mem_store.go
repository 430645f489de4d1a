package solvers

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store.
type MemStore struct {
	solvers map[string]*Solver

	sync.Mutex
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		solvers: make(map[string]*Solver),
	}
}

// AddSolver stores a new solver.
func (m *MemStore) AddSolver(_ context.Context, solver *Solver) error {
	m.Lock()
	defer m.Unlock()

	if _, ok := m.solvers[solver.WalletAddress]; ok {
		return ErrAlreadyRegistered
	}

	for _, s := range m.solvers {
		if s.WebhookURL == solver.WebhookURL {
			return ErrDuplicateWebhook
		}
	}

	s := *solver
	m.solvers[solver.WalletAddress] = &s

	return nil
}

// GetSolver returns the solver with the wallet address.
func (m *MemStore) GetSolver(_ context.Context,
	walletAddress string) (*Solver, error) {

	m.Lock()
	defer m.Unlock()

	s, ok := m.solvers[walletAddress]
	if !ok {
		return nil, ErrSolverNotFound
	}

	c := *s
	return &c, nil
}

// ListSolvers returns all solvers in registration order.
func (m *MemStore) ListSolvers(_ context.Context) ([]*Solver, error) {
	m.Lock()
	defer m.Unlock()

	all := make([]*Solver, 0, len(m.solvers))
	for _, s := range m.solvers {
		c := *s
		all = append(all, &c)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].RegisteredAt.Equal(all[j].RegisteredAt) {
			return all[i].WalletAddress < all[j].WalletAddress
		}

		return all[i].RegisteredAt.Before(all[j].RegisteredAt)
	})

	return all, nil
}

// RemoveSolver deletes the solver.
func (m *MemStore) RemoveSolver(_ context.Context,
	walletAddress string) error {

	m.Lock()
	defer m.Unlock()

	if _, ok := m.solvers[walletAddress]; !ok {
		return ErrSolverNotFound
	}

	delete(m.solvers, walletAddress)

	return nil
}
