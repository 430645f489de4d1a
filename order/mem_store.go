package order

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
)

// MemStore is an in-memory Store.
type MemStore struct {
	sync.Mutex

	orders  map[string]*Order
	escrows map[string]map[escrow.Side]*escrow.Escrow
	updates map[string][]*Update
	hashes  map[hashlock.Hash]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		orders:  make(map[string]*Order),
		escrows: make(map[string]map[escrow.Side]*escrow.Escrow),
		updates: make(map[string][]*Update),
		hashes:  make(map[hashlock.Hash]string),
	}
}

// CreateOrder stores a new order together with its first updates.
func (s *MemStore) CreateOrder(_ context.Context, o *Order,
	updates []*Update) error {

	s.Lock()
	defer s.Unlock()

	if _, ok := s.hashes[o.HashLock]; ok {
		return ErrDuplicateHashLock
	}
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %v already exists", o.ID)
	}

	s.orders[o.ID] = o.Clone()
	s.escrows[o.ID] = make(map[escrow.Side]*escrow.Escrow)
	s.hashes[o.HashLock] = o.ID
	s.updates[o.ID] = copyUpdates(updates)

	return nil
}

// GetOrder returns the order with its escrow references set.
func (s *MemStore) GetOrder(_ context.Context, id string) (*Order, error) {
	s.Lock()
	defer s.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrOrderNotFound, id)
	}

	c := o.Clone()
	c.setEscrowRefs(s.escrowList(id))

	return c, nil
}

// GetEscrows returns the escrows of the order ordered by side.
func (s *MemStore) GetEscrows(_ context.Context,
	orderID string) ([]*escrow.Escrow, error) {

	s.Lock()
	defer s.Unlock()

	return s.escrowList(orderID), nil
}

// ListOrders returns all orders in creation order.
func (s *MemStore) ListOrders(_ context.Context) ([]*Order, error) {
	return s.list(func(*Order) bool { return true }), nil
}

// ListOrdersByStatus returns the orders in the status.
func (s *MemStore) ListOrdersByStatus(_ context.Context,
	status fsm.StateType) ([]*Order, error) {

	return s.list(func(o *Order) bool { return o.Status == status }), nil
}

// UpdateOrder stores the order, its escrows and the updates if the stored
// version equals the version of the order.
func (s *MemStore) UpdateOrder(_ context.Context, o *Order,
	escrows []*escrow.Escrow, updates []*Update) error {

	s.Lock()
	defer s.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, o.ID)
	}
	if stored.Version != o.Version {
		return fmt.Errorf("%w: order %v at version %d, stored %d",
			ErrVersionConflict, o.ID, o.Version, stored.Version)
	}

	o.Version++
	s.orders[o.ID] = o.Clone()

	for _, e := range escrows {
		s.escrows[o.ID][e.Side] = e.Copy()
	}
	s.updates[o.ID] = append(s.updates[o.ID], copyUpdates(updates)...)

	return nil
}

// GetOrderUpdates returns the status history of the order.
func (s *MemStore) GetOrderUpdates(_ context.Context,
	id string) ([]*Update, error) {

	s.Lock()
	defer s.Unlock()

	return copyUpdates(s.updates[id]), nil
}

func (s *MemStore) list(filter func(*Order) bool) []*Order {
	s.Lock()
	defer s.Unlock()

	var orders []*Order
	for id, o := range s.orders {
		if !filter(o) {
			continue
		}

		c := o.Clone()
		c.setEscrowRefs(s.escrowList(id))
		orders = append(orders, c)
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}

		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders
}

func (s *MemStore) escrowList(orderID string) []*escrow.Escrow {
	var escrows []*escrow.Escrow
	for _, side := range escrow.Sides {
		if e, ok := s.escrows[orderID][side]; ok {
			escrows = append(escrows, e.Copy())
		}
	}

	return escrows
}

func copyUpdates(updates []*Update) []*Update {
	c := make([]*Update, 0, len(updates))
	for _, u := range updates {
		uc := *u
		c = append(c, &uc)
	}

	return c
}
