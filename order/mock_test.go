package order

import (
	"context"
	"sync"

	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/stretchr/testify/mock"
)

type mockAdapter struct {
	mock.Mock

	params *chain.Params
}

func (m *mockAdapter) Params() *chain.Params {
	return m.params
}

func (m *mockAdapter) DeployEscrowSrc(ctx context.Context,
	params *escrow.Params) (*chain.EscrowInfo, error) {

	args := m.Called(ctx, params)
	return args.Get(0).(*chain.EscrowInfo), args.Error(1)
}

func (m *mockAdapter) DeployEscrowDst(ctx context.Context,
	params *escrow.Params) (*chain.EscrowInfo, error) {

	args := m.Called(ctx, params)
	return args.Get(0).(*chain.EscrowInfo), args.Error(1)
}

func (m *mockAdapter) EscrowState(ctx context.Context,
	address string) (*chain.EscrowInfo, error) {

	args := m.Called(ctx, address)
	return args.Get(0).(*chain.EscrowInfo), args.Error(1)
}

func (m *mockAdapter) Simulate(ctx context.Context, tx *chain.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockAdapter) Submit(ctx context.Context,
	tx *chain.Tx) (*chain.Receipt, error) {

	args := m.Called(ctx, tx)
	return args.Get(0).(*chain.Receipt), args.Error(1)
}

func (m *mockAdapter) Confirmations(ctx context.Context,
	address string) (uint32, error) {

	args := m.Called(ctx, address)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *mockAdapter) BestHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint32), args.Error(1)
}

type secretCall struct {
	orderID    string
	secret     string
	recipients []notifications.Recipient
}

// mockNotifier records webhooks and reports them delivered right away.
type mockNotifier struct {
	sync.Mutex

	newOrders []string
	secrets   []secretCall
}

func (m *mockNotifier) NotifyNewOrder(orderID string, _ interface{},
	recipients []notifications.Recipient, done notifications.DoneFunc) {

	m.Lock()
	m.newOrders = append(m.newOrders, orderID)
	m.Unlock()

	deliver(recipients, done)
}

func (m *mockNotifier) NotifySecret(orderID, secret string,
	recipients []notifications.Recipient, done notifications.DoneFunc) {

	m.Lock()
	m.secrets = append(m.secrets, secretCall{
		orderID:    orderID,
		secret:     secret,
		recipients: recipients,
	})
	m.Unlock()

	deliver(recipients, done)
}

func (m *mockNotifier) secretCalls() []secretCall {
	m.Lock()
	defer m.Unlock()

	return append([]secretCall(nil), m.secrets...)
}

func deliver(recipients []notifications.Recipient,
	done notifications.DoneFunc) {

	if done == nil {
		return
	}

	results := make([]notifications.DeliveryResult, len(recipients))
	for i, r := range recipients {
		results[i] = notifications.DeliveryResult{
			Recipient: r,
			Attempts:  1,
		}
	}
	done(results)
}
