package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMoveFundsToAttestorAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	assert.Empty(t, h.ledger.sweeps)

	alice := h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private")
	bob := h.onboard(t, "dev2", "tb1bob", "bob@harvard.edu", "private")
	h.pay(t, alice, "unit1")
	require.NoError(t, h.receive(t, bob, "unit2", bob.Price, "tb1bob"))

	// only confirmed payments are swept
	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	require.Len(t, h.ledger.sweeps, 1)
	assert.Equal(t, []string{alice.ReceivingAddress}, h.ledger.sweeps[0])

	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	assert.Len(t, h.ledger.sweeps, 1)

	require.NoError(t, h.stabilize(t, bob, "unit2"))
	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	require.Len(t, h.ledger.sweeps, 2)
	assert.Equal(t, []string{bob.ReceivingAddress}, h.ledger.sweeps[1])
}

func TestMoveFundsLimitsAddressesPerRun(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Dependencies) {
		cfg.MaxSweepAddresses = 1
	})
	ctx := context.Background()
	h.pay(t, h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private"), "unit1")
	h.pay(t, h.onboard(t, "dev2", "tb1bob", "bob@harvard.edu", "private"), "unit2")

	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))
	require.Len(t, h.ledger.sweeps, 2)
	assert.Len(t, h.ledger.sweeps[0], 1)
	assert.Len(t, h.ledger.sweeps[1], 1)
	assert.NotEqual(t, h.ledger.sweeps[0], h.ledger.sweeps[1])
}

func TestMoveFundsSkippedWhileSyncing(t *testing.T) {
	h := newHarness(t)
	h.pay(t, h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private"), "unit1")
	h.ledger.set(func(f *fakeLedger) { f.syncing = true })

	require.NoError(t, h.svc.MoveFundsToAttestorAddress(context.Background()))
	assert.Empty(t, h.ledger.sweeps)
}

func TestMoveFundsNothingToSweepMarksAddresses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pay(t, h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private"), "unit1")

	h.ledger.set(func(f *fakeLedger) { f.sweepErr = ledger.ErrNothingToSweep })
	require.NoError(t, h.svc.MoveFundsToAttestorAddress(ctx))

	candidates, err := h.repo.SweepCandidates(ctx, 16)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMoveFundsFailureNotifiesAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra := h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private")
	h.pay(t, ra, "unit1")

	h.ledger.set(func(f *fakeLedger) { f.sweepErr = errors.New("fee too low") })
	require.Error(t, h.svc.MoveFundsToAttestorAddress(ctx))
	h.notifier.AssertCalled(t, "Notify", "failed to move funds", mock.Anything)

	candidates, err := h.repo.SweepCandidates(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, []string{ra.ReceivingAddress}, candidates)
}

func TestRunSweepsAggregatesErrors(t *testing.T) {
	h := newHarness(t)
	ra := h.onboard(t, "dev1", "tb1alice", "alice@harvard.edu", "private")
	h.pay(t, ra, "unit1")

	h.ledger.set(func(f *fakeLedger) { f.sweepErr = errors.New("fee too low") })
	err := h.svc.RunSweeps(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "funds sweep")
	assert.Contains(t, err.Error(), "fee too low")
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.svc.RunSweeper(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
