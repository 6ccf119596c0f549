package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/ledger"
	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/hashicorp/go-multierror"
)

// RetrySendingEmails mails every code that was issued but not delivered.
func (s *Service) RetrySendingEmails(ctx context.Context) error {
	emails, err := s.repo.UnsentVerificationEmails(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, ve := range emails {
		if err := s.sendVerificationEmail(ctx, ve.TransactionID); err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", ve.TransactionID, err))
		}
	}
	return result.ErrorOrNil()
}

// RetryPostingAttestations posts every verified attestation still missing
// from the ledger.
func (s *Service) RetryPostingAttestations(ctx context.Context) error {
	ids, err := s.repo.UnpostedAttestations(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range ids {
		if err := s.PostAttestation(ctx, id); err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// RetrySendingRewards pays every recorded reward of either kind that is
// still unpaid.
func (s *Service) RetrySendingRewards(ctx context.Context) error {
	var result *multierror.Error
	for _, kind := range []models.RewardKind{models.RewardAttestation, models.RewardReferral} {
		ids, err := s.repo.UnpaidRewards(ctx, kind)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, id := range ids {
			if err := s.SendAndWriteReward(ctx, kind, id); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s reward of transaction %d: %w", kind, id, err))
			}
		}
	}
	return result.ErrorOrNil()
}

// RecheckStalledPayments confirms accepted payments that became stable
// without the watcher reporting it, e.g. while the bot was down.
func (s *Service) RecheckStalledPayments(ctx context.Context) error {
	if s.cfg.StableConfirmations <= 0 {
		return nil
	}
	txs, err := s.repo.StalledPayments(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, tx := range txs {
		confirmations, err := s.ledger.Confirmations(ctx, tx.PaymentUnit)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", tx.TransactionID, err))
			continue
		}
		if confirmations < s.cfg.StableConfirmations {
			continue
		}
		s.logger.Infof("Payment %s is stable but was not confirmed yet", tx.PaymentUnit)
		err = s.HandlePaymentStable(ctx, ledger.Payment{
			Unit:          tx.PaymentUnit,
			Address:       tx.ReceivingAddress,
			Amount:        tx.ReceivedAmount,
			Confirmations: confirmations,
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", tx.TransactionID, err))
		}
	}
	return result.ErrorOrNil()
}

// RunSweeps runs every retry once. A failing sweep does not stop the others.
func (s *Service) RunSweeps(ctx context.Context) error {
	var result *multierror.Error
	sweeps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"payments", s.RecheckStalledPayments},
		{"emails", s.RetrySendingEmails},
		{"attestations", s.RetryPostingAttestations},
		{"rewards", s.RetrySendingRewards},
		{"funds", s.MoveFundsToAttestorAddress},
	}
	for _, sweep := range sweeps {
		if ctx.Err() != nil {
			break
		}
		if err := sweep.run(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s sweep: %w", sweep.name, err))
		}
	}
	return result.ErrorOrNil()
}

// RunSweeper repeats RunSweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunSweeps(ctx); err != nil {
			s.logger.Errorf("Sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
