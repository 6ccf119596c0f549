package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/ledger"
	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/sirupsen/logrus"
)

// HandleLedgerEvent is the ledger.Handler of the payment watcher.
func (s *Service) HandleLedgerEvent(ctx context.Context, ev ledger.Event) error {
	switch ev.Kind {
	case ledger.EventNewPayment:
		return s.HandleNewPayment(ctx, ev.Payment)
	case ledger.EventPaymentStable:
		return s.HandlePaymentStable(ctx, ev.Payment)
	}
	return fmt.Errorf("unknown ledger event %d", ev.Kind)
}

// paymentCheck is the outcome of checking a payment against the quote.
// An empty reason means the payment is accepted.
type paymentCheck struct {
	reason       string
	resetAddress bool
}

// HandleNewPayment records a payment seen for the first time. Payments to
// addresses the bot did not issue are ignored.
func (s *Service) HandleNewPayment(ctx context.Context, p ledger.Payment) error {
	ra, err := s.repo.GetReceivingAddressByAddress(ctx, p.Address)
	if err != nil {
		return err
	}
	if ra == nil {
		s.logger.Debugf("Payment %s to %s is not for a receiving address", p.Unit, p.Address)
		return nil
	}

	existing, err := s.repo.GetTransactionByPayment(ctx, ra.ReceivingAddress, p.Unit)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	log := s.logger.WithFields(logrus.Fields{"device": ra.DeviceAddress, "unit": p.Unit, "address": p.Address})
	log.Infof("New payment of %d", p.Amount)
	lang := s.userLang(ctx, ra.DeviceAddress)

	check, err := s.checkPayment(ctx, ra, p, lang)
	if err != nil {
		return err
	}

	if check.reason != "" {
		created, err := s.repo.CreateRejectedPayment(ctx, &models.RejectedPayment{
			ReceivingAddress: ra.ReceivingAddress,
			PaymentUnit:      p.Unit,
			Price:            ra.Price,
			ReceivedAmount:   p.Amount,
			Error:            check.reason,
		})
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		if check.resetAddress {
			if err := s.repo.SetUserAddress(ctx, ra.DeviceAddress, nil); err != nil {
				return err
			}
		}
		s.metrics.Payment("rejected")
		log.Warnf("Rejected payment: %s", check.reason)
		s.send(ctx, ra.DeviceAddress, check.reason)
		return nil
	}

	created, err := s.repo.CreateTransaction(ctx, &models.Transaction{
		ReceivingAddress: ra.ReceivingAddress,
		PaymentUnit:      p.Unit,
		Price:            ra.Price,
		ReceivedAmount:   p.Amount,
		State:            models.StatePaymentReceived,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	s.metrics.Payment("accepted")
	s.metrics.Transition(string(models.StateAwaitingPayment), string(models.StatePaymentReceived))
	s.send(ctx, ra.DeviceAddress, s.texts.T(lang, i18n.ReceivedYourPayment, utils.FormatBTC(p.Amount)))
	return nil
}

// checkPayment validates asset, amount and the single paying address.
// Ledger failures are returned so the event is retried.
func (s *Service) checkPayment(ctx context.Context, ra *models.ReceivingAddress, p ledger.Payment, lang string) (paymentCheck, error) {
	if p.Asset != ledger.NativeAsset {
		return paymentCheck{reason: s.texts.T(lang, i18n.ReceivedWrongAsset)}, nil
	}

	if p.Amount < ra.Price {
		reason := s.texts.T(lang, i18n.ReceivedLessThanExpected, utils.FormatBTC(p.Amount), utils.FormatBTC(ra.Price)) +
			"\n\n" + s.pleasePay(lang, ra)
		return paymentCheck{reason: reason}, nil
	}

	authors, err := s.ledger.Authors(ctx, p.Unit)
	if err != nil {
		return paymentCheck{}, fmt.Errorf("failed to get authors of %s: %w", p.Unit, err)
	}

	switch {
	case len(authors) != 1:
		return paymentCheck{
			reason: s.texts.T(lang, i18n.ReceivedFromMultiple) + "\n\n" +
				s.texts.T(lang, i18n.SwitchToSingleAddress),
			resetAddress: true,
		}, nil
	case authors[0] != ra.UserAddress:
		return paymentCheck{
			reason: s.texts.T(lang, i18n.ReceivedNotFromExpected, ra.UserAddress) + "\n\n" +
				s.texts.T(lang, i18n.SwitchToSingleAddress),
			resetAddress: true,
		}, nil
	}

	return paymentCheck{}, nil
}

// HandlePaymentStable issues a verification code once the payment is final.
func (s *Service) HandlePaymentStable(ctx context.Context, p ledger.Payment) error {
	ra, err := s.repo.GetReceivingAddressByAddress(ctx, p.Address)
	if err != nil {
		return err
	}
	if ra == nil {
		return nil
	}

	tx, err := s.repo.GetTransactionByPayment(ctx, ra.ReceivingAddress, p.Unit)
	if err != nil {
		return err
	}
	if tx == nil {
		// rejected payments have no transaction
		return nil
	}

	issued, err := s.confirmPayment(ctx, tx.TransactionID, ra)
	if err != nil || !issued {
		return err
	}
	return s.sendVerificationEmail(ctx, tx.TransactionID)
}

func (s *Service) confirmPayment(ctx context.Context, txID uint, ra *models.ReceivingAddress) (bool, error) {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return false, err
	}
	defer unlock()

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx == nil {
		return false, fmt.Errorf("%w: transaction %d disappeared", ErrIntegrity, txID)
	}

	to, _, err := models.Next(tx.State, models.Event{Kind: models.EventPaymentStable})
	if errors.Is(err, models.ErrTerminalState) || errors.Is(err, models.ErrInvalidTransition) {
		s.logger.Debugf("Transaction %d already confirmed (%s)", txID, tx.State)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	code, err := utils.RandomCode(s.cfg.CodeLength)
	if err != nil {
		return false, fmt.Errorf("failed to generate verification code: %w", err)
	}

	err = s.repo.ConfirmPayment(ctx, txID, tx.State, to, &models.VerificationEmail{
		TransactionID: txID,
		UserEmail:     ra.UserEmail,
		Code:          code,
	})
	if err != nil {
		return false, err
	}
	s.metrics.Transition(string(tx.State), string(to))
	s.logger.Infof("Payment %s is stable, transaction %d confirmed", tx.PaymentUnit, txID)

	lang := s.userLang(ctx, ra.DeviceAddress)
	s.send(ctx, ra.DeviceAddress, s.texts.T(lang, i18n.PaymentIsConfirmed))
	return true, nil
}
