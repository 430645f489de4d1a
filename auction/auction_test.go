package auction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/test"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1_700_000_000, 0)

// TestAmountOut tests the linear price decay of a Dutch auction.
func TestAmountOut(t *testing.T) {
	a, err := NewDutchAuction(
		"order", uint256.NewInt(1000), uint256.NewInt(2000), testTime,
		DefaultStartBuffer, DefaultDuration,
	)
	require.NoError(t, err)
	require.Equal(t, testTime.Add(DefaultStartBuffer), a.StartTime)
	require.Equal(t, a.StartTime.Add(DefaultDuration), a.EndTime)

	tests := []struct {
		name     string
		at       time.Time
		expected uint64
	}{
		{
			name:     "before start",
			at:       testTime,
			expected: 2000,
		},
		{
			name:     "start",
			at:       a.StartTime,
			expected: 2000,
		},
		{
			name:     "quarter",
			at:       a.StartTime.Add(DefaultDuration / 4),
			expected: 1750,
		},
		{
			name:     "half",
			at:       a.StartTime.Add(DefaultDuration / 2),
			expected: 1500,
		},
		{
			name:     "end",
			at:       a.EndTime,
			expected: 1000,
		},
		{
			name:     "after end",
			at:       a.EndTime.Add(time.Hour),
			expected: 1000,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(
				t, tc.expected, a.AmountOut(tc.at).Uint64(),
			)
		})
	}

	// Without a duration the auction stays at its opening price.
	flat, err := NewDutchAuction(
		"flat", uint256.NewInt(1), uint256.NewInt(2), testTime, 0, 0,
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, flat.AmountOut(testTime).Uint64())

	_, err = NewDutchAuction(
		"bad", uint256.NewInt(2), uint256.NewInt(1), testTime, 0, 0,
	)
	require.Error(t, err)
}

// TestAmountOutLargeAmounts makes sure 18 decimal amounts do not overflow.
func TestAmountOutLargeAmounts(t *testing.T) {
	minOut := test.Amount(t, "1000000000000000000000000")
	maxOut := test.Amount(t, "2000000000000000000000000")

	a, err := NewDutchAuction(
		"order", minOut, maxOut, testTime, 0, DefaultDuration,
	)
	require.NoError(t, err)

	half := a.AmountOut(testTime.Add(DefaultDuration / 2))
	require.Equal(t, "1500000000000000000000000", half.Dec())
}

// TestAmountOutFullRange checks the curve on amounts close to the uint256
// limit.
func TestAmountOutFullRange(t *testing.T) {
	maxOut := new(uint256.Int).SetAllOne()
	minOut := new(uint256.Int).Lsh(uint256.NewInt(1), 255)

	a, err := NewDutchAuction(
		"order", minOut, maxOut, testTime, 0, DefaultDuration,
	)
	require.NoError(t, err)

	require.Equal(t, maxOut, a.AmountOut(testTime))
	require.Equal(
		t, "86844066927987146567678238756515930889952488499230423029"+
			"593188005934847229952",
		a.AmountOut(testTime.Add(DefaultDuration/2)).Dec(),
	)
	require.Equal(
		t, "72370055773322622139731865630429942408293740416025352524"+
			"660990004945706024960",
		a.AmountOut(testTime.Add(DefaultDuration*3/4)).Dec(),
	)
	require.Equal(t, minOut, a.AmountOut(testTime.Add(time.Hour)))
}

// TestOpeningAmount tests the premium and its cap.
func TestOpeningAmount(t *testing.T) {
	require.Equal(
		t, "999900000",
		openingAmount(test.Amount(t, "990000000"), 100).Dec(),
	)

	maxOut := new(uint256.Int).SetAllOne()
	nearMax := new(uint256.Int).Sub(maxOut, uint256.NewInt(1000))
	require.Equal(t, maxOut, openingAmount(nearMax, DefaultPremiumBps))
}

func testOrder(t *testing.T, id string) *order.Order {
	return &order.Order{
		ID: id,
		Terms: order.Terms{
			DestinationAmount: test.Amount(t, "990000000"),
		},
	}
}

// TestBookFill tests starting and filling auctions.
func TestBookFill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testClock := clock.NewTestClock(testTime)
	book := NewBook(&BookConfig{Clock: testClock})

	fills, err := book.SubscribeFills(ctx)
	require.NoError(t, err)

	o := testOrder(t, "order-1")
	a, err := book.StartAuction(ctx, o)
	require.NoError(t, err)
	require.Equal(t, "999900000", a.MaxAmountOut.Dec())
	require.Equal(t, "990000000", a.MinAmountOut.Dec())

	_, err = book.StartAuction(ctx, o)
	require.ErrorIs(t, err, ErrAuctionExists)

	_, err = book.Fill(ctx, o.ID, "0xresolver")
	require.ErrorIs(t, err, ErrAuctionNotStarted)

	_, err = book.Fill(ctx, "unknown", "0xresolver")
	require.ErrorIs(t, err, ErrAuctionNotFound)

	testClock.SetTime(a.StartTime.Add(DefaultDuration / 2))

	fill, err := book.Fill(ctx, o.ID, "0xresolver")
	require.NoError(t, err)
	require.Equal(t, "994950000", fill.AmountOut.Dec())

	select {
	case got := <-fills:
		require.Equal(t, fill, got)

	case <-time.After(test.Timeout):
		t.Fatal("fill not received")
	}

	// The auction is closed after the first fill.
	_, err = book.Fill(ctx, o.ID, "0xrival")
	require.ErrorIs(t, err, ErrAuctionNotFound)
}

type mockAccepter struct {
	mock.Mock
}

func (m *mockAccepter) Accept(ctx context.Context, orderID, resolver string,
	price *uint256.Int) (*order.Order, error) {

	args := m.Called(ctx, orderID, resolver, price)
	return args.Get(0).(*order.Order), args.Error(1)
}

// TestWatcher tests that fills are forwarded to the order manager and that
// rejected fills do not stop the watcher.
func TestWatcher(t *testing.T) {
	defer test.Guard(t)()

	ctx, cancel := context.WithCancel(context.Background())

	testClock := clock.NewTestClock(testTime)
	book := NewBook(&BookConfig{
		Clock:       testClock,
		StartBuffer: time.Second,
	})

	accepted := make(chan string, 3)
	accepter := &mockAccepter{}
	record := func(args mock.Arguments) {
		accepted <- fmt.Sprintf("%v:%v", args.String(1),
			args.String(2))
	}

	accepter.On(
		"Accept", mock.Anything, "order-1", "0xresolver",
		mock.Anything,
	).Return(testOrder(t, "order-1"), nil).Run(record)

	accepter.On(
		"Accept", mock.Anything, "order-2", "0xrival", mock.Anything,
	).Return(
		(*order.Order)(nil), &order.AlreadyAcceptedError{
			OrderID:  "order-2",
			Resolver: "0xresolver",
		},
	).Run(record)

	accepter.On(
		"Accept", mock.Anything, "order-3", "0xresolver",
		mock.Anything,
	).Return((*order.Order)(nil), errors.New("db down")).Run(record)

	watcher := NewWatcher(book, accepter)

	errChan := make(chan error, 1)
	go func() {
		errChan <- watcher.Run(ctx)
	}()

	// Wait for the watcher to subscribe before filling.
	require.Eventually(t, func() bool {
		book.Lock()
		defer book.Unlock()

		return len(book.subscribers) == 1
	}, test.Timeout, 10*time.Millisecond)

	for _, id := range []string{"order-1", "order-2", "order-3"} {
		_, err := book.StartAuction(ctx, testOrder(t, id))
		require.NoError(t, err)
	}
	testClock.SetTime(testTime.Add(time.Minute))

	fills := []struct {
		orderID  string
		resolver string
	}{
		{"order-1", "0xresolver"},
		{"order-2", "0xrival"},
		{"order-3", "0xresolver"},
	}
	for _, f := range fills {
		_, err := book.Fill(ctx, f.orderID, f.resolver)
		require.NoError(t, err)
	}

	for _, f := range fills {
		select {
		case got := <-accepted:
			require.Equal(t, f.orderID+":"+f.resolver, got)

		case <-time.After(test.Timeout):
			t.Fatalf("fill of %v not accepted", f.orderID)
		}
	}

	cancel()
	require.NoError(t, <-errChan)

	accepter.AssertExpectations(t)
}
