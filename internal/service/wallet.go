package service

import (
	"context"
	"errors"

	"github.com/Fi44er/email_attestation_bot/internal/ledger"
)

const receivingBranch = ledger.BranchReceiving

// MoveFundsToAttestorAddress sweeps the confirmed payments of up to
// MaxSweepAddresses receiving addresses to the attestor address, which pays
// for posting attestations. Runs never overlap and are skipped while the
// node is still syncing.
func (s *Service) MoveFundsToAttestorAddress(ctx context.Context) error {
	syncing, err := s.ledger.Syncing(ctx)
	if err != nil {
		return err
	}
	if syncing {
		s.logger.Info("Node is syncing, not moving funds")
		return nil
	}

	unlock, ok := s.locks.TryLock(sweepLock)
	if !ok {
		s.logger.Debug("Funds are already being moved")
		return nil
	}
	defer unlock()

	addresses, err := s.repo.SweepCandidates(ctx, s.cfg.MaxSweepAddresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		s.logger.Debug("No funds to move")
		return nil
	}

	unit, err := s.ledger.SweepAll(ctx, addresses, s.cfg.AttestorAddress)
	if errors.Is(err, ledger.ErrNothingToSweep) {
		s.logger.Infof("Nothing left on %d receiving addresses", len(addresses))
		s.metrics.Sweep("empty")
		return s.repo.MarkSwept(ctx, addresses)
	}
	if err != nil {
		s.metrics.Sweep("failed")
		s.escalate(ctx, "failed to move funds", err, s.cfg.AttestorAddress)
		return err
	}

	s.metrics.Sweep("moved")
	s.logger.Infof("Moved funds of %d receiving addresses to the attestor address in %s", len(addresses), unit)
	return s.repo.MarkSwept(ctx, addresses)
}
