package order

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/Anmol-Dhiman/stellar-fusionX/solvers"
	"github.com/Anmol-Dhiman/stellar-fusionX/test"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1_700_000_000, 0)

const (
	testMaker    = "0xmaker"
	testReceiver = "GMAKERRECEIVER"
	testResolver = "0xresolver"
	testRival    = "0xrival"

	srcChain = "sepolia"
	dstChain = "stellar-testnet"

	srcToken = "0xusdc"
	dstToken = "USDC:GISSUER"

	srcAmount = "1000000000000000000"
	dstAmount = "990000000"
)

type testContext struct {
	t   *testing.T
	ctx context.Context

	clock    *clock.TestClock
	registry *solvers.Registry
	notifier *mockNotifier
	src      *chain.SimLedger
	dst      *chain.SimLedger

	cfg     *Config
	manager *Manager

	secret []byte
	hash   hashlock.Hash
}

func newTestContext(t *testing.T, store Store,
	opts ...func(*Config)) *testContext {

	ctx := context.Background()
	testClock := clock.NewTestClock(testTime)

	registry := solvers.NewRegistry(solvers.NewMemStore(), testClock)
	_, err := registry.Register(ctx, testResolver, "http://resolver.example")
	require.NoError(t, err)
	_, err = registry.Register(ctx, testRival, "http://rival.example")
	require.NoError(t, err)

	src := chain.NewSimLedger(&chain.SimLedgerConfig{
		Params: &chain.Params{
			ID:            srcChain,
			Kind:          chain.KindAccount,
			ConfDepth:     12,
			EscrowTimeout: 2 * time.Hour,
			SrcFactory:    "0xsrcfactory",
			DstFactory:    "0xdstfactory",
		},
		Clock:     testClock,
		Resolvers: registry,
	})
	dst := chain.NewSimLedger(&chain.SimLedgerConfig{
		Params: &chain.Params{
			ID:            dstChain,
			Kind:          chain.KindContract,
			ConfDepth:     5,
			EscrowTimeout: time.Hour,
			SrcFactory:    "CSRCFACTORY",
			DstFactory:    "CDSTFACTORY",
		},
		Clock:     testClock,
		Resolvers: registry,
	})

	chains, err := chain.NewAdapters(src, dst)
	require.NoError(t, err)

	notifier := &mockNotifier{}
	cfg := &Config{
		Store:                store,
		Chains:               chains,
		Solvers:              registry,
		Notifier:             notifier,
		Metrics:              NewMetrics(prometheus.NewRegistry()),
		Clock:                testClock,
		Relay:                true,
		FinalityPollInterval: 10 * time.Millisecond,
		TimeoutTicker:        ticker.NewForce(time.Hour),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	manager, err := NewManager(cfg)
	require.NoError(t, err)

	secret, hash := test.Secret("swap-secret-42")

	return &testContext{
		t:        t,
		ctx:      ctx,
		clock:    testClock,
		registry: registry,
		notifier: notifier,
		src:      src,
		dst:      dst,
		cfg:      cfg,
		manager:  manager,
		secret:   secret,
		hash:     hash,
	}
}

func (tc *testContext) terms(hash hashlock.Hash) *Terms {
	return &Terms{
		Maker:             testMaker,
		Receiver:          testReceiver,
		SourceChain:       srcChain,
		DestinationChain:  dstChain,
		SourceToken:       srcToken,
		DestinationToken:  dstToken,
		SourceAmount:      test.Amount(tc.t, srcAmount),
		DestinationAmount: test.Amount(tc.t, dstAmount),
		HashLock:          hash,
		Signature:         []byte{0x01},
	}
}

func (tc *testContext) submit() *Order {
	o, err := tc.manager.Submit(tc.ctx, tc.terms(tc.hash))
	require.NoError(tc.t, err)
	require.Equal(tc.t, Created, o.Status)

	return o
}

func (tc *testContext) accept(o *Order) {
	accepted, err := tc.manager.Accept(tc.ctx, o.ID, testResolver, nil)
	require.NoError(tc.t, err)
	require.Equal(tc.t, Accepted, accepted.Status)
}

func (tc *testContext) ledger(side escrow.Side) *chain.SimLedger {
	if side == escrow.SideSource {
		return tc.src
	}

	return tc.dst
}

// deploy deploys the escrow of the side on its ledger and lets the
// coordinator observe it.
func (tc *testContext) deploy(o *Order, side escrow.Side,
	amount *uint256.Int) string {

	params := &escrow.Params{
		OrderID:  o.ID,
		Side:     side,
		Amount:   amount,
		HashLock: o.HashLock[:],
		Caller:   testResolver,
	}

	var (
		info *chain.EscrowInfo
		err  error
	)
	if side == escrow.SideSource {
		params.Token = o.SourceToken
		params.Beneficiary = testResolver
		params.Depositor = testMaker
		params.Timeout = testTime.Add(2 * time.Hour)
		info, err = tc.src.DeployEscrowSrc(tc.ctx, params)
	} else {
		params.Token = o.DestinationToken
		params.Beneficiary = o.Receiver
		params.Depositor = testResolver
		params.Timeout = testTime.Add(time.Hour)
		info, err = tc.dst.DeployEscrowDst(tc.ctx, params)
	}
	require.NoError(tc.t, err)

	_, err = tc.manager.ObserveEscrow(
		tc.ctx, o.ID, side, info.Params.Address,
	)
	require.NoError(tc.t, err)

	return info.Params.Address
}

// fund deposits into the escrow on its ledger and lets the coordinator
// observe it.
func (tc *testContext) fund(o *Order, side escrow.Side, addr string,
	amount *uint256.Int, token string) *Order {

	_, err := tc.ledger(side).Submit(tc.ctx, &chain.Tx{
		Kind:   chain.TxFund,
		Escrow: addr,
		Caller: testResolver,
		Amount: amount,
		Token:  token,
	})
	require.NoError(tc.t, err)

	observed, err := tc.manager.ObserveEscrow(tc.ctx, o.ID, side, addr)
	require.NoError(tc.t, err)

	return observed
}

// fundedOrder drives a new order to escrow-funded.
func (tc *testContext) fundedOrder() (*Order, string, string) {
	return tc.fundedOrderFor(tc.submit())
}

// fundedOrderWithHash drives a new order with the hash lock of the seed to
// escrow-funded.
func (tc *testContext) fundedOrderWithHash(seed string) (*Order, string,
	string) {

	_, hash := test.Secret(seed)
	o, err := tc.manager.Submit(tc.ctx, tc.terms(hash))
	require.NoError(tc.t, err)

	return tc.fundedOrderFor(o)
}

func (tc *testContext) fundedOrderFor(o *Order) (*Order, string, string) {
	tc.accept(o)

	srcAddr := tc.deploy(o, escrow.SideSource, o.SourceAmount)
	dstAddr := tc.deploy(o, escrow.SideDestination, o.DestinationAmount)

	o = tc.fund(o, escrow.SideSource, srcAddr, o.SourceAmount, srcToken)
	require.Equal(tc.t, EscrowPending, o.Status)
	require.True(tc.t, o.SourceFunded)

	o = tc.fund(
		o, escrow.SideDestination, dstAddr, o.DestinationAmount,
		dstToken,
	)
	require.Equal(tc.t, EscrowFunded, o.Status)

	return o, srcAddr, dstAddr
}

// finalOrder drives a new order to finality-confirmed.
func (tc *testContext) finalOrder() *Order {
	o, _, _ := tc.fundedOrder()

	tc.dst.Mine(4)
	o, err := tc.manager.ConfirmFinality(tc.ctx, o.ID, 5)
	require.NoError(tc.t, err)
	require.Equal(tc.t, FinalityConfirmed, o.Status)

	return o
}

func (tc *testContext) status(id string) fsm.StateType {
	o, err := tc.manager.GetOrder(tc.ctx, id)
	require.NoError(tc.t, err)

	return o.Status
}

// testStores runs the test against every store implementation.
func testStores(t *testing.T, f func(t *testing.T, store Store)) {
	t.Run("mem", func(t *testing.T) {
		f(t, NewMemStore())
	})

	t.Run("sql", func(t *testing.T) {
		f(t, NewSQLStore(fusiondb.NewTestDB(t)))
	})
}

// TestSwapSettles runs a swap from submission to settlement with both escrows
// on simulated ledgers.
func TestSwapSettles(t *testing.T) {
	testStores(t, testSwapSettles)
}

func testSwapSettles(t *testing.T, store Store) {
	tc := newTestContext(t, store)

	o, srcAddr, dstAddr := tc.fundedOrder()
	require.Len(t, tc.notifier.newOrders, 1)

	// The destination deposit has a single confirmation.
	_, err := tc.manager.ConfirmFinality(tc.ctx, o.ID, 1)
	require.ErrorIs(t, err, ErrPrematureFinality)

	var premature *PrematureFinalityError
	require.ErrorAs(t, err, &premature)
	require.EqualValues(t, 5, premature.Required)
	require.EqualValues(t, 1, premature.Observed)

	// Revealing before finality is rejected.
	_, err = tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.ErrorIs(t, err, ErrPrematureFinality)

	confs, err := tc.dst.Confirmations(tc.ctx, dstAddr)
	require.NoError(t, err)
	tc.dst.Mine(5 - confs)

	o, err = tc.manager.ConfirmFinality(tc.ctx, o.ID, 5)
	require.NoError(t, err)
	require.Equal(t, FinalityConfirmed, o.Status)
	require.EqualValues(t, 5, o.FinalityDepth)

	// A secret that does not match the hash lock is rejected.
	_, err = tc.manager.RevealSecret(tc.ctx, o.ID, []byte("wrong"))
	require.ErrorIs(t, err, ErrSecretMismatch)
	require.Equal(t, FinalityConfirmed, tc.status(o.ID))

	o, err = tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.NoError(t, err)
	require.Equal(t, SecretRevealed, o.Status)
	require.Equal(t, tc.secret, o.Secret)
	require.True(t, o.SecretSharedToResolver)
	require.False(t, o.SecretSharedToNetwork)

	// Only the bound resolver received the secret.
	calls := tc.notifier.secretCalls()
	require.Len(t, calls, 1)
	require.Equal(t, hex.EncodeToString(tc.secret), calls[0].secret)
	require.Len(t, calls[0].recipients, 1)
	require.Equal(t, testResolver, calls[0].recipients[0].Address)

	// The order cannot complete before both escrows are withdrawn.
	_, err = tc.manager.MarkCompleted(tc.ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	// The resolver pays the maker first, then takes the source funds.
	o, err = tc.manager.WithdrawEscrow(
		tc.ctx, o.ID, escrow.SideDestination, tc.secret, testResolver,
	)
	require.NoError(t, err)
	require.Equal(t, SecretRevealed, o.Status)

	info, err := tc.dst.EscrowState(tc.ctx, dstAddr)
	require.NoError(t, err)
	require.Equal(t, escrow.Withdrawn, info.State)
	require.True(t, info.Balance.IsZero())

	o, err = tc.manager.WithdrawEscrow(
		tc.ctx, o.ID, escrow.SideSource, tc.secret, testResolver,
	)
	require.NoError(t, err)
	require.Equal(t, Settled, o.Status)

	info, err = tc.src.EscrowState(tc.ctx, srcAddr)
	require.NoError(t, err)
	require.Equal(t, escrow.Withdrawn, info.State)

	// Completing a settled order is a no-op.
	o, err = tc.manager.MarkCompleted(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, Settled, o.Status)

	updates, err := tc.manager.GetOrderUpdates(tc.ctx, o.ID)
	require.NoError(t, err)

	var statuses []fsm.StateType
	for _, u := range updates {
		statuses = append(statuses, u.Status)
	}
	require.Equal(t, []fsm.StateType{
		Created, Accepted, EscrowPending, EscrowPending,
		EscrowPending, EscrowPending, EscrowFunded, FinalityConfirmed,
		SecretRevealed, SecretRevealed, SecretRevealed, Settled,
	}, statuses)

	escrows, err := tc.manager.GetEscrows(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, escrows, 2)
	for _, e := range escrows {
		require.Equal(t, escrow.Withdrawn, e.State)
		require.Equal(t, tc.secret, e.Secret)
		require.Equal(t, testResolver, e.ClosedBy)
	}

	payload, err := tc.manager.GetPayload(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, string(Settled), payload.Status)
	require.Equal(t, hex.EncodeToString(tc.secret), payload.Secret)
	require.Equal(t, srcAddr, payload.SourceEscrow.Address)
	require.Equal(t, dstAddr, payload.DestinationEscrow.Address)
}

// TestSubmitValidation checks that malformed orders are rejected.
func TestSubmitValidation(t *testing.T) {
	tc := newTestContext(t, NewMemStore())

	tests := []struct {
		name   string
		modify func(*Terms)
		field  string
	}{
		{
			name:   "missing maker",
			modify: func(t *Terms) { t.Maker = "" },
			field:  "maker",
		},
		{
			name: "same chains",
			modify: func(t *Terms) {
				t.DestinationChain = t.SourceChain
			},
			field: "destination chain",
		},
		{
			name:   "unknown chain",
			modify: func(t *Terms) { t.SourceChain = "dogechain" },
			field:  "source chain",
		},
		{
			name: "zero amount",
			modify: func(t *Terms) {
				t.SourceAmount = new(uint256.Int)
			},
			field: "source amount",
		},
		{
			name: "missing hash lock",
			modify: func(t *Terms) {
				t.HashLock = hashlock.ZeroHash
			},
			field: "secret hash",
		},
		{
			name:   "missing signature",
			modify: func(t *Terms) { t.Signature = nil },
			field:  "signature",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			terms := tc.terms(tc.hash)
			testCase.modify(terms)

			_, err := tc.manager.Submit(tc.ctx, terms)
			require.ErrorIs(t, err, ErrInvalidOrder)

			var invalid *InvalidOrderError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, testCase.field, invalid.Field)
		})
	}

	// The receiver defaults to the maker.
	terms := tc.terms(tc.hash)
	terms.Receiver = ""
	o, err := tc.manager.Submit(tc.ctx, terms)
	require.NoError(t, err)
	require.Equal(t, testMaker, o.Receiver)
	require.Equal(t, testTime.Add(DefaultOrderTTL), o.ExpiresAt)

	// A hash lock can only be used once.
	_, err = tc.manager.Submit(tc.ctx, tc.terms(tc.hash))
	require.ErrorIs(t, err, ErrInvalidOrder)
}

// TestSubmitPermit checks the verification of maker permits.
func TestSubmitPermit(t *testing.T) {
	tc := newTestContext(t, NewMemStore(), func(cfg *Config) {
		cfg.PermitSpender = "0xfusion"
		cfg.PermitEncoding = permit.EncodingTLV
	})

	key, err := permit.NewEd25519Key(test.CreateEd25519Seed(0))
	require.NoError(t, err)

	terms := tc.terms(tc.hash)
	p := &permit.Permit{
		Token:   terms.SourceToken,
		Owner:   terms.Maker,
		Spender: "0xfusion",
		Amount:  terms.SourceAmount,
	}
	digest, err := p.Digest(permit.EncodingTLV)
	require.NoError(t, err)

	sig, err := permit.SignDigest(key, digest)
	require.NoError(t, err)

	terms.Signature = sig.Signature
	terms.SignatureScheme = sig.Scheme
	terms.MakerPubKey = sig.PubKey

	// A permit over a different amount does not verify.
	tampered := *terms
	tampered.SourceAmount = test.Amount(t, "1")
	_, err = tc.manager.Submit(tc.ctx, &tampered)
	require.ErrorIs(t, err, ErrInvalidOrder)

	o, err := tc.manager.Submit(tc.ctx, terms)
	require.NoError(t, err)
	require.Equal(t, sig.PubKey, o.MakerPubKey)
}

// TestAcceptRace checks that exactly one of two competing resolvers binds
// the order.
func TestAcceptRace(t *testing.T) {
	tc := newTestContext(t, NewMemStore())
	o := tc.submit()

	const attempts = 10

	var (
		wg   sync.WaitGroup
		errs = make([]error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			resolver := testResolver
			if i%2 == 1 {
				resolver = testRival
			}

			_, errs[i] = tc.manager.Accept(tc.ctx, o.ID, resolver, nil)
		}(i)
	}
	wg.Wait()

	o, err := tc.manager.GetOrder(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, Accepted, o.Status)

	for i, err := range errs {
		resolver := testResolver
		if i%2 == 1 {
			resolver = testRival
		}

		if resolver == o.Resolver {
			require.NoError(t, err)
			continue
		}

		require.ErrorIs(t, err, ErrAlreadyAccepted)

		var accepted *AlreadyAcceptedError
		require.ErrorAs(t, err, &accepted)
		require.Equal(t, o.Resolver, accepted.Resolver)
	}

	updates, err := tc.manager.GetOrderUpdates(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
}

// TestAcceptPrice checks the price rules of acceptance.
func TestAcceptPrice(t *testing.T) {
	tc := newTestContext(t, NewMemStore())
	o := tc.submit()

	// Unregistered resolvers cannot accept.
	_, err := tc.manager.Accept(tc.ctx, o.ID, "0xstranger", nil)
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	_, err = tc.manager.Accept(
		tc.ctx, o.ID, testResolver, test.Amount(t, "1"),
	)
	require.ErrorIs(t, err, ErrInvalidOrder)

	o, err = tc.manager.Accept(
		tc.ctx, o.ID, testResolver, test.Amount(t, "995000000"),
	)
	require.NoError(t, err)
	require.Equal(t, "995000000", o.Price.Dec())
	require.Equal(t, "995000000", o.RequiredDestinationAmount().Dec())

	_, err = tc.manager.Accept(tc.ctx, "unknown", testResolver, nil)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

// TestUnderfundedDestination checks that a short destination escrow disputes
// the order and that the order unwinds through public cancellation after the
// timeout.
func TestUnderfundedDestination(t *testing.T) {
	testStores(t, testUnderfundedDestination)
}

func testUnderfundedDestination(t *testing.T, store Store) {
	tc := newTestContext(t, store)

	o := tc.submit()
	tc.accept(o)

	short := test.Amount(t, "900000000")
	srcAddr := tc.deploy(o, escrow.SideSource, o.SourceAmount)
	dstAddr := tc.deploy(o, escrow.SideDestination, short)

	tc.fund(o, escrow.SideSource, srcAddr, o.SourceAmount, srcToken)
	o = tc.fund(o, escrow.SideDestination, dstAddr, short, dstToken)
	require.Equal(t, Disputed, o.Status)

	// A disputed order can neither reach finality nor be cancelled while
	// funds are locked.
	_, err := tc.manager.ConfirmFinality(tc.ctx, o.ID, 10)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = tc.manager.MarkCancelled(tc.ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	// Nothing happens before the escrows time out.
	require.NoError(t, tc.manager.CheckTimeouts(tc.ctx))
	require.Equal(t, Disputed, tc.status(o.ID))

	tc.clock.SetTime(testTime.Add(3 * time.Hour))
	require.NoError(t, tc.manager.CheckTimeouts(tc.ctx))
	require.Equal(t, CancelPending, tc.status(o.ID))

	// The private path is closed after the timeout.
	_, err = tc.manager.CancelEscrow(
		tc.ctx, o.ID, escrow.SideDestination, testResolver,
	)
	require.ErrorIs(t, err, escrow.ErrTimelockExpired)

	// Any registered resolver unwinds the escrows.
	o, err = tc.manager.PublicCancelEscrow(
		tc.ctx, o.ID, escrow.SideDestination, testRival,
	)
	require.NoError(t, err)
	require.Equal(t, CancelPending, o.Status)

	o, err = tc.manager.PublicCancelEscrow(
		tc.ctx, o.ID, escrow.SideSource, testRival,
	)
	require.NoError(t, err)
	require.Equal(t, Cancelled, o.Status)

	info, err := tc.src.EscrowState(tc.ctx, srcAddr)
	require.NoError(t, err)
	require.Equal(t, escrow.Cancelled, info.State)
	require.Equal(t, testRival, info.ClosedBy)

	// Cancelling a cancelled order is a no-op.
	o, err = tc.manager.MarkCancelled(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, Cancelled, o.Status)
}

// TestShortDeposit checks that a short deposit leaves the order unchanged
// and can be topped up.
func TestShortDeposit(t *testing.T) {
	tc := newTestContext(t, NewMemStore(), func(cfg *Config) {
		cfg.Relay = false
	})

	o := tc.submit()
	tc.accept(o)

	dstAddr := tc.deploy(o, escrow.SideDestination, o.DestinationAmount)

	before, err := tc.manager.GetOrder(tc.ctx, o.ID)
	require.NoError(t, err)

	_, err = tc.manager.RecordEscrowFunded(
		tc.ctx, o.ID, escrow.SideDestination, test.Amount(t, "1"),
		dstToken,
	)
	require.ErrorIs(t, err, ErrUnderfunded)

	_, err = tc.manager.RecordEscrowFunded(
		tc.ctx, o.ID, escrow.SideDestination, o.DestinationAmount,
		"XLM",
	)
	require.ErrorIs(t, err, ErrUnderfunded)

	after, err := tc.manager.GetOrder(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
	require.False(t, after.DestinationFunded)

	o, err = tc.manager.RecordEscrowFunded(
		tc.ctx, o.ID, escrow.SideDestination, o.DestinationAmount,
		dstToken,
	)
	require.NoError(t, err)
	require.True(t, o.DestinationFunded)
	require.Equal(t, EscrowPending, o.Status)

	// Replaying the observation is a no-op.
	replayed, err := tc.manager.RecordEscrowFunded(
		tc.ctx, o.ID, escrow.SideDestination, o.DestinationAmount,
		dstToken,
	)
	require.NoError(t, err)
	require.Equal(t, o.Version, replayed.Version)

	// Observing the same escrow again is a no-op, a second escrow for the
	// side is rejected.
	_, err = tc.manager.ObserveEscrow(
		tc.ctx, o.ID, escrow.SideDestination, dstAddr,
	)
	require.NoError(t, err)

	_, err = tc.manager.RecordEscrowDeployed(tc.ctx, &escrow.Params{
		OrderID:     o.ID,
		Side:        escrow.SideDestination,
		Address:     "CSECOND",
		Token:       dstToken,
		Amount:      o.DestinationAmount,
		HashLock:    o.HashLock[:],
		Timeout:     testTime.Add(time.Hour),
		Caller:      testResolver,
		Beneficiary: testReceiver,
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestRevealSecret checks that revealing is idempotent and write once.
func TestRevealSecret(t *testing.T) {
	tc := newTestContext(t, NewMemStore())

	o := tc.submit()
	tc.accept(o)

	_, err := tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.ErrorIs(t, err, ErrPrematureFinality)

	_, err = tc.manager.ConfirmFinality(tc.ctx, o.ID, 100)
	require.ErrorIs(t, err, ErrPrematureFinality)

	tc2 := newTestContext(t, NewMemStore())
	o = tc2.finalOrder()

	o, err = tc2.manager.RevealSecret(tc2.ctx, o.ID, tc2.secret)
	require.NoError(t, err)
	require.Equal(t, SecretRevealed, o.Status)

	updates, err := tc2.manager.GetOrderUpdates(tc2.ctx, o.ID)
	require.NoError(t, err)

	// Revealing the same secret again changes nothing.
	again, err := tc2.manager.RevealSecret(tc2.ctx, o.ID, tc2.secret)
	require.NoError(t, err)
	require.Equal(t, o.Version, again.Version)

	after, err := tc2.manager.GetOrderUpdates(tc2.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, after, len(updates))
	require.Len(t, tc2.notifier.secretCalls(), 1)

	_, err = tc2.manager.RevealSecret(tc2.ctx, o.ID, []byte("other"))
	require.ErrorIs(t, err, ErrSecretConflict)

	// Finality confirmed earlier stays confirmed.
	_, err = tc2.manager.ConfirmFinality(tc2.ctx, o.ID, 1)
	require.NoError(t, err)
}

// TestRevealAfterTimeout checks that a secret is refused once the
// destination escrow can be refunded, and that the order is unwound instead.
func TestRevealAfterTimeout(t *testing.T) {
	testStores(t, testRevealAfterTimeout)
}

func testRevealAfterTimeout(t *testing.T, store Store) {
	tc := newTestContext(t, store)

	o := tc.finalOrder()

	// The destination escrow times out an hour in, the source escrow
	// two hours in.
	tc.clock.SetTime(testTime.Add(time.Hour + time.Minute))

	_, err := tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.ErrorIs(t, err, ErrTimelockExpired)

	o, err = tc.manager.GetOrder(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, CancelPending, o.Status)
	require.Empty(t, o.Secret)
	require.False(t, o.SecretSharedToResolver)
	require.Empty(t, tc.notifier.secretCalls())

	// The refund of the destination escrow leaves the order unwinding.
	o, err = tc.manager.PublicCancelEscrow(
		tc.ctx, o.ID, escrow.SideDestination, testResolver,
	)
	require.NoError(t, err)
	require.Equal(t, CancelPending, o.Status)

	// The secret stays refused.
	_, err = tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, tc.notifier.secretCalls())
}

// TestFinalityAfterTimeout checks that finality is refused once an escrow
// timed out.
func TestFinalityAfterTimeout(t *testing.T) {
	tc := newTestContext(t, NewMemStore())

	o, _, _ := tc.fundedOrder()
	tc.dst.Mine(4)

	tc.clock.SetTime(testTime.Add(time.Hour))

	_, err := tc.manager.ConfirmFinality(tc.ctx, o.ID, 5)
	require.ErrorIs(t, err, ErrTimelockExpired)
	require.Equal(t, CancelPending, tc.status(o.ID))

	_, err = tc.manager.ConfirmFinality(tc.ctx, o.ID, 5)
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestBroadcastSecret checks that broadcast mode shares the secret with all
// resolvers and flags the order.
func TestBroadcastSecret(t *testing.T) {
	tc := newTestContext(t, NewMemStore(), func(cfg *Config) {
		cfg.BroadcastSecrets = true
	})

	o := tc.finalOrder()

	_, err := tc.manager.RevealSecret(tc.ctx, o.ID, tc.secret)
	require.NoError(t, err)

	calls := tc.notifier.secretCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].recipients, 2)

	o, err = tc.manager.GetOrder(tc.ctx, o.ID)
	require.NoError(t, err)
	require.True(t, o.SecretSharedToResolver)
	require.True(t, o.SecretSharedToNetwork)
	require.Equal(t, SecretRevealed, o.Status)
}

// TestObserveWithdrawal checks that a withdrawal observed on chain reveals
// the secret to the coordinator.
func TestObserveWithdrawal(t *testing.T) {
	tc := newTestContext(t, NewMemStore(), func(cfg *Config) {
		cfg.Relay = false
	})

	o := tc.finalOrder()
	dst := o.EscrowRef(escrow.SideDestination)
	require.NotEmpty(t, dst)

	escrows, err := tc.manager.GetEscrows(tc.ctx, o.ID)
	require.NoError(t, err)
	dstAddr := escrows[1].Address

	// The maker's secret shows up on chain first.
	_, err = tc.dst.Submit(tc.ctx, &chain.Tx{
		Kind:   chain.TxWithdraw,
		Escrow: dstAddr,
		Caller: testResolver,
		Secret: tc.secret,
	})
	require.NoError(t, err)

	o, err = tc.manager.ObserveEscrow(
		tc.ctx, o.ID, escrow.SideDestination, dstAddr,
	)
	require.NoError(t, err)
	require.Equal(t, SecretRevealed, o.Status)
	require.Equal(t, tc.secret, o.Secret)
}

// TestExpireOrders checks that orders without escrows expire.
func TestExpireOrders(t *testing.T) {
	tc := newTestContext(t, NewMemStore())

	created := tc.submit()

	_, hash := test.Secret("second")
	accepted, err := tc.manager.Submit(tc.ctx, tc.terms(hash))
	require.NoError(t, err)
	tc.accept(accepted)

	require.NoError(t, tc.manager.CheckTimeouts(tc.ctx))
	require.Equal(t, Created, tc.status(created.ID))

	tc.clock.SetTime(testTime.Add(DefaultOrderTTL))
	require.NoError(t, tc.manager.CheckTimeouts(tc.ctx))
	require.Equal(t, Expired, tc.status(created.ID))
	require.Equal(t, Expired, tc.status(accepted.ID))

	// Expired orders reject further operations.
	_, err = tc.manager.Accept(tc.ctx, created.ID, testRival, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestMarkCancelled checks cancellation before escrows hold funds.
func TestMarkCancelled(t *testing.T) {
	tc := newTestContext(t, NewMemStore())

	o := tc.submit()
	o, err := tc.manager.MarkCancelled(tc.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, Cancelled, o.Status)

	// Funded escrows have to be cancelled first.
	funded, _, _ := tc.fundedOrderWithHash("funded")
	_, err = tc.manager.MarkCancelled(tc.ctx, funded.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestRun checks the timeout and finality watchers.
func TestRun(t *testing.T) {
	defer test.Guard(t)()

	tc := newTestContext(t, NewMemStore())

	ctx, cancel := context.WithCancel(tc.ctx)
	runErr := make(chan error, 1)
	go func() {
		runErr <- tc.manager.Run(ctx)
	}()

	o, _, _ := tc.fundedOrder()
	tc.dst.Mine(4)

	require.Eventually(t, func() bool {
		return tc.status(o.ID) == FinalityConfirmed
	}, test.Timeout, 10*time.Millisecond)

	_, hash := test.Secret("stale")
	stale, err := tc.manager.Submit(tc.ctx, tc.terms(hash))
	require.NoError(t, err)

	tc.clock.SetTime(testTime.Add(2 * DefaultOrderTTL))
	tc.cfg.TimeoutTicker.Force <- testTime

	require.Eventually(t, func() bool {
		return tc.status(stale.ID) == Expired
	}, test.Timeout, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runErr)
}

// TestAwaitFinality checks that confirmation errors are retried.
func TestAwaitFinality(t *testing.T) {
	ctx := context.Background()
	testClock := clock.NewTestClock(testTime)

	registry := solvers.NewRegistry(solvers.NewMemStore(), testClock)
	_, err := registry.Register(ctx, testResolver, "http://resolver.example")
	require.NoError(t, err)

	src := &mockAdapter{params: &chain.Params{
		ID:            srcChain,
		Kind:          chain.KindAccount,
		ConfDepth:     12,
		EscrowTimeout: 2 * time.Hour,
	}}
	dst := &mockAdapter{params: &chain.Params{
		ID:            dstChain,
		Kind:          chain.KindContract,
		ConfDepth:     3,
		EscrowTimeout: time.Hour,
	}}
	chains, err := chain.NewAdapters(src, dst)
	require.NoError(t, err)

	manager, err := NewManager(&Config{
		Store:                NewMemStore(),
		Chains:               chains,
		Solvers:              registry,
		Clock:                testClock,
		FinalityPollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	tc := &testContext{t: t}
	secret, hash := test.Secret("await")
	o, err := manager.Submit(ctx, tc.terms(hash))
	require.NoError(t, err)
	_, err = manager.Accept(ctx, o.ID, testResolver, nil)
	require.NoError(t, err)

	for _, side := range escrow.Sides {
		params := &escrow.Params{
			OrderID:     o.ID,
			Side:        side,
			Address:     fmt.Sprintf("addr-%v", side),
			Token:       srcToken,
			Amount:      o.SourceAmount,
			HashLock:    hash[:],
			Timeout:     testTime.Add(2 * time.Hour),
			Caller:      testResolver,
			Beneficiary: testResolver,
			Depositor:   testMaker,
		}
		if side == escrow.SideDestination {
			params.Token = dstToken
			params.Amount = o.DestinationAmount
			params.Timeout = testTime.Add(time.Hour)
			params.Beneficiary = testReceiver
			params.Depositor = testResolver
		}

		_, err = manager.RecordEscrowDeployed(ctx, params)
		require.NoError(t, err)

		o, err = manager.RecordEscrowFunded(
			ctx, o.ID, side, params.Amount, params.Token,
		)
		require.NoError(t, err)
	}
	require.Equal(t, EscrowFunded, o.Status)

	dst.On("Confirmations", mock.Anything, "addr-destination").
		Return(uint32(0), errors.New("rpc unavailable")).Once()
	dst.On("Confirmations", mock.Anything, "addr-destination").
		Return(uint32(1), nil).Once()
	dst.On("Confirmations", mock.Anything, "addr-destination").
		Return(uint32(3), nil)

	o, err = manager.AwaitFinality(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, FinalityConfirmed, o.Status)
	require.EqualValues(t, 3, o.FinalityDepth)
	dst.AssertExpectations(t)

	o, err = manager.RevealSecret(ctx, o.ID, secret)
	require.NoError(t, err)
	require.Equal(t, SecretRevealed, o.Status)
}

// TestVersionConflict checks that stores reject stale updates.
func TestVersionConflict(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tc := newTestContext(t, store)
		o := tc.submit()

		first, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		second, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)

		first.Resolver = testResolver
		require.NoError(t, store.UpdateOrder(ctx, first, nil, nil))
		require.Equal(t, second.Version+1, first.Version)

		second.Resolver = testRival
		err = store.UpdateOrder(ctx, second, nil, nil)
		require.ErrorIs(t, err, ErrVersionConflict)

		stored, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, testResolver, stored.Resolver)
		require.Equal(t, o.SourceAmount, stored.SourceAmount)
		require.Equal(t, o.HashLock, stored.HashLock)
		require.Equal(t, o.Signature, stored.Signature)
	})
}
