package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Fi44er/email_attestation_bot/internal/attestation"
	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/sirupsen/logrus"
)

// Referrer is the attested user whose coins funded a new user's payment.
type Referrer struct {
	UserID        string
	UserAddress   string
	DeviceAddress string
}

// AttributeRewards records and pays the first-time reward of a verified
// transaction and, when the payment is traced back to an attested user, the
// referral reward of that user.
func (s *Service) AttributeRewards(ctx context.Context, txID uint) error {
	if !s.rewardsEnabled() {
		return nil
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	att, err := s.repo.GetAttestation(ctx, txID)
	if err != nil {
		return err
	}
	ve, err := s.repo.GetVerificationEmail(ctx, txID)
	if err != nil {
		return err
	}
	if tx == nil || att == nil || ve == nil {
		return fmt.Errorf("%w: transaction %d is not verified", ErrIntegrity, txID)
	}
	if !s.QualifiesForReward(ve.UserEmail) {
		return nil
	}
	ra, err := s.repo.GetReceivingAddressByAddress(ctx, tx.ReceivingAddress)
	if err != nil {
		return err
	}
	if ra == nil {
		return fmt.Errorf("%w: unknown receiving address %s", ErrIntegrity, tx.ReceivingAddress)
	}
	payload, err := attestation.Decode(att.Payload)
	if err != nil {
		return err
	}

	reward, err := s.rates.ToNative(s.cfg.RewardUSD)
	if err != nil {
		s.notifyAdmin(ctx, "failed to compute reward", fmt.Sprintf("transaction %d: %v", txID, err))
		return err
	}

	created, err := s.repo.CreateReward(ctx, &models.RewardUnit{
		TransactionID: txID,
		DeviceAddress: ra.DeviceAddress,
		UserAddress:   ra.UserAddress,
		UserEmail:     ve.UserEmail,
		UserID:        payload.UserID(),
		Reward:        reward,
	})
	if err != nil {
		return err
	}
	if !created {
		s.metrics.Reward(string(models.RewardAttestation), "duplicate")
		s.logger.Infof("Duplicate user address, user id or device of transaction %d, no reward", txID)
		return nil
	}

	lang := s.userLang(ctx, ra.DeviceAddress)
	s.send(ctx, ra.DeviceAddress, s.texts.T(lang, i18n.FirstTimeBonus, formatUSD(s.cfg.RewardUSD), utils.FormatBTC(reward)))
	if err := s.SendAndWriteReward(ctx, models.RewardAttestation, txID); err != nil {
		s.logger.Errorf("Reward of transaction %d not paid yet: %v", txID, err)
	}

	if s.cfg.ReferralRewardUSD <= 0 {
		return nil
	}
	return s.attributeReferral(ctx, tx, ra, payload)
}

func (s *Service) attributeReferral(ctx context.Context, tx *models.Transaction, ra *models.ReceivingAddress, payload *attestation.Payload) error {
	referrer, err := s.FindReferrer(ctx, tx.PaymentUnit, ra.UserAddress)
	if err != nil {
		s.notifyAdmin(ctx, "failed to find referrer", fmt.Sprintf("transaction %d: %v", tx.TransactionID, err))
		return err
	}
	if referrer == nil {
		s.logger.Debugf("No referrer for transaction %d", tx.TransactionID)
		return nil
	}

	reward, err := s.rates.ToNative(s.cfg.ReferralRewardUSD)
	if err != nil {
		s.notifyAdmin(ctx, "failed to compute referral reward", fmt.Sprintf("transaction %d: %v", tx.TransactionID, err))
		return err
	}

	created, err := s.repo.CreateReferralReward(ctx, &models.ReferralRewardUnit{
		TransactionID:  tx.TransactionID,
		DeviceAddress:  referrer.DeviceAddress,
		UserAddress:    referrer.UserAddress,
		UserID:         referrer.UserID,
		NewUserAddress: ra.UserAddress,
		NewUserID:      payload.UserID(),
		Reward:         reward,
	})
	if err != nil {
		return err
	}
	if !created {
		s.metrics.Reward(string(models.RewardReferral), "duplicate")
		s.notifyAdmin(ctx, "duplicate referral reward",
			fmt.Sprintf("referral reward for new user %s already exists, transaction %d", ra.UserAddress, tx.TransactionID))
		return nil
	}

	lang := s.userLang(ctx, referrer.DeviceAddress)
	s.send(ctx, referrer.DeviceAddress,
		s.texts.T(lang, i18n.ReferredUserBonus, formatUSD(s.cfg.ReferralRewardUSD), utils.FormatBTC(reward)))
	if err := s.SendAndWriteReward(ctx, models.RewardReferral, tx.TransactionID); err != nil {
		s.logger.Errorf("Referral reward of transaction %d not paid yet: %v", tx.TransactionID, err)
	}
	return nil
}

// FindReferrer walks the ancestry of paymentUnit up to MaxReferralDepth
// levels and returns the attested owner of the most recently confirmed
// ancestor address. Coins of the payer itself are not a referral.
func (s *Service) FindReferrer(ctx context.Context, paymentUnit, userAddress string) (*Referrer, error) {
	mcis := make(map[string]int64)
	units := []string{paymentUnit}

	for depth := 1; len(units) > 0; depth++ {
		sources, err := s.ledger.InputSources(ctx, units)
		if err != nil {
			return nil, fmt.Errorf("failed to get input sources: %w", err)
		}

		seen := make(map[string]bool)
		var next []string
		for _, src := range sources {
			if !seen[src.SrcUnit] {
				seen[src.SrcUnit] = true
				next = append(next, src.SrcUnit)
			}
			if src.Address == userAddress {
				continue
			}
			if mci, ok := mcis[src.Address]; !ok || src.MCI > mci {
				mcis[src.Address] = src.MCI
			}
		}

		if depth >= s.cfg.MaxReferralDepth {
			break
		}
		units = next
	}
	if len(mcis) == 0 {
		return nil, nil
	}

	addresses := make([]string, 0, len(mcis))
	for address := range mcis {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	rows, err := s.repo.PostedAttestationsByAddresses(ctx, addresses, paymentUnit)
	if err != nil {
		return nil, err
	}

	var best *Referrer
	bestMCI := int64(-1)
	for _, row := range rows {
		if row.Address != row.UserAddress {
			return nil, fmt.Errorf("%w: attested address %s differs from payer %s", ErrIntegrity, row.Address, row.UserAddress)
		}
		payload, err := attestation.Decode(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if payload.Address != row.Address {
			return nil, fmt.Errorf("%w: payload of %s is for %s", ErrIntegrity, row.Address, payload.Address)
		}
		userID := payload.UserID()
		if userID == "" {
			return nil, fmt.Errorf("%w: no user id in attestation %s", ErrIntegrity, row.AttestationUnit)
		}
		if mci := mcis[row.Address]; mci > bestMCI {
			bestMCI = mci
			best = &Referrer{UserID: userID, UserAddress: row.UserAddress, DeviceAddress: row.DeviceAddress}
		}
	}
	return best, nil
}

// SendAndWriteReward pays one recorded reward from the distribution address.
// A reward is paid at most once.
func (s *Service) SendAndWriteReward(ctx context.Context, kind models.RewardKind, txID uint) error {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return err
	}
	defer unlock()

	dispatch, err := s.repo.GetRewardDispatch(ctx, kind, txID)
	if err != nil {
		return err
	}
	if dispatch == nil {
		return fmt.Errorf("%w: no %s reward for transaction %d", ErrIntegrity, kind, txID)
	}
	if dispatch.RewardDate != nil {
		return nil
	}

	unit, err := s.ledger.SendPayment(ctx, s.cfg.DistributionAddress, dispatch.UserAddress, dispatch.Reward)
	if err != nil {
		s.metrics.Reward(string(kind), "failed")
		s.escalate(ctx, "failed to send reward", fmt.Errorf("%s reward of transaction %d: %w", kind, txID, err), s.cfg.DistributionAddress)
		return err
	}

	sent, err := s.repo.MarkRewardSent(ctx, kind, txID, unit)
	if err != nil {
		return err
	}
	if !sent {
		s.logger.Warnf("%s reward of transaction %d was already marked paid, new unit %s", kind, txID, unit)
		return nil
	}
	s.metrics.Reward(string(kind), "paid")
	s.logger.WithFields(logrus.Fields{
		"tx":      txID,
		"unit":    unit,
		"address": dispatch.UserAddress,
	}).Infof("Paid %s reward of %d", kind, dispatch.Reward)
	return nil
}
