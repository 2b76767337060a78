package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/logging"
)

func request(ref string) Request {
	return Request{Reference: ref, MethodRef: "bank:001", Amount: decimal.NewFromInt(100), Direction: DirectionInbound}
}

func TestRoundRobinCyclesNetworks(t *testing.T) {
	d, err := NewDispatcher(Config{Routing: RoutingRoundRobin}, logging.Discard(), NewNetworkA(), NewNetworkB(), NewNetworkC())
	require.NoError(t, err)

	got := []Network{d.Select(), d.Select(), d.Select(), d.Select()}
	assert.Equal(t, []Network{NetworkA, NetworkB, NetworkC, NetworkA}, got)
}

func TestFixedRoutingUsesDefault(t *testing.T) {
	d, err := NewDispatcher(Config{Routing: RoutingFixed, Default: NetworkC}, logging.Discard(), NewNetworkA(), NewNetworkC())
	require.NoError(t, err)
	assert.Equal(t, NetworkC, d.Select())
	assert.Equal(t, NetworkC, d.Select())

	_, err = NewDispatcher(Config{Routing: RoutingFixed, Default: NetworkB}, logging.Discard(), NewNetworkA())
	require.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestSettleSynchronousAndAsynchronous(t *testing.T) {
	b := NewNetworkB()
	d, err := NewDispatcher(Config{}, logging.Discard(), NewNetworkA(), b)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := d.Settle(ctx, NetworkA, request("tx-1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.NotEmpty(t, res.ProcessorRef)

	again, err := d.Settle(ctx, NetworkA, request("tx-1"))
	require.NoError(t, err)
	assert.Equal(t, res.ProcessorRef, again.ProcessorRef)

	accepted, err := d.Settle(ctx, NetworkB, request("tx-2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, accepted.Outcome)

	_, err = b.Confirm("tx-2", false, "account closed")
	require.NoError(t, err)
	status, err := d.Status(ctx, NetworkB, "tx-2")
	require.NoError(t, err)
	assert.False(t, status.Success)
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Equal(t, "account closed", status.Reason)
}

func TestSettleDeclineIsProcessorError(t *testing.T) {
	d, err := NewDispatcher(Config{}, logging.Discard(), NewNetworkC(WithLimit(decimal.NewFromInt(50))))
	require.NoError(t, err)

	_, err = d.Settle(context.Background(), NetworkC, request("tx-1"))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, NetworkC, perr.Network)
	assert.Equal(t, "amount exceeds network limit", perr.Reason)

	bad := request("tx-2")
	bad.MethodRef = "card:12ab"
	_, err = d.Settle(context.Background(), NetworkC, bad)
	require.ErrorAs(t, err, &perr)
}

func TestSettleTimeoutIsIndeterminate(t *testing.T) {
	d, err := NewDispatcher(Config{Timeout: 10 * time.Millisecond}, logging.Discard(), NewNetworkA(WithLatency(time.Second)))
	require.NoError(t, err)

	_, err = d.Settle(context.Background(), NetworkA, request("tx-1"))
	require.ErrorIs(t, err, ErrIndeterminate)

	// The network kept the submission and reports it on a status poll.
	status, err := d.Status(context.Background(), NetworkA, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, status.Outcome)
}

func TestBreakerOpensAfterTransportFailures(t *testing.T) {
	a := NewNetworkA(WithFailures(errors.New("connection reset"), errors.New("connection reset")))
	d, err := NewDispatcher(Config{BreakerFailures: 2, BreakerCooldown: time.Minute}, logging.Discard(), a)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := d.Settle(ctx, NetworkA, request("tx-fail"))
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "connection reset", perr.Reason)
	}

	_, err = d.Settle(ctx, NetworkA, request("tx-next"))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "network unavailable", perr.Reason)
}

func TestDeclinesDoNotTripBreaker(t *testing.T) {
	d, err := NewDispatcher(Config{BreakerFailures: 1}, logging.Discard(), NewNetworkA())
	require.NoError(t, err)
	ctx := context.Background()

	missing := request("tx-1")
	missing.MethodRef = ""
	_, err = d.Settle(ctx, NetworkA, missing)
	require.Error(t, err)

	_, err = d.Settle(ctx, NetworkA, request("tx-2"))
	require.NoError(t, err)
}

func TestUnknownNetwork(t *testing.T) {
	d, err := NewDispatcher(Config{}, logging.Discard(), NewNetworkA())
	require.NoError(t, err)
	_, err = d.Settle(context.Background(), NetworkB, request("tx-1"))
	require.ErrorIs(t, err, ErrUnknownNetwork)
}

type panickingGateway struct {
	Gateway
}

func (panickingGateway) Submit(context.Context, Request) (Result, error) {
	panic("nil response body")
}

func TestSettleGatewayPanicIsProcessorError(t *testing.T) {
	d, err := NewDispatcher(Config{}, logging.Discard(), panickingGateway{NewNetworkA()})
	require.NoError(t, err)

	_, err = d.Settle(context.Background(), NetworkA, request("tx-1"))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, NetworkA, perr.Network)
	assert.Contains(t, perr.Reason, "nil response body")
	assert.NotErrorIs(t, err, ErrIndeterminate)
}
