package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/attestation"
	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/sirupsen/logrus"
)

// PostAttestation publishes the stored payload of txID from the attestor
// address and tells the user where to find it. Posting happens at most once.
func (s *Service) PostAttestation(ctx context.Context, txID uint) error {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return err
	}
	defer unlock()

	att, err := s.repo.GetAttestation(ctx, txID)
	if err != nil {
		return err
	}
	if att == nil {
		return fmt.Errorf("%w: no attestation for transaction %d", ErrIntegrity, txID)
	}
	if att.AttestationUnit != nil {
		return nil
	}

	unit, err := s.ledger.PostAttestation(ctx, s.cfg.AttestorAddress, att.Payload)
	if err != nil {
		s.metrics.Attestation("failed")
		s.logger.Errorf("Failed to post attestation of transaction %d: %v", txID, err)
		s.escalate(ctx, "attestation failed", err, s.cfg.AttestorAddress)
		return fmt.Errorf("failed to post attestation: %w", err)
	}

	posted, err := s.repo.MarkAttestationPosted(ctx, txID, unit)
	if err != nil {
		return err
	}
	if !posted {
		s.logger.Warnf("Attestation of transaction %d was already marked posted, new unit %s", txID, unit)
		return nil
	}
	s.metrics.Attestation("posted")
	s.logger.WithFields(logrus.Fields{"tx": txID, "unit": unit}).Info("Posted attestation")

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil || tx == nil {
		return err
	}
	ra, err := s.repo.GetReceivingAddressByAddress(ctx, tx.ReceivingAddress)
	if err != nil || ra == nil {
		return err
	}
	lang := s.userLang(ctx, ra.DeviceAddress)

	text := s.texts.T(lang, i18n.SeeAttestationUnit, s.cfg.ExplorerURL+unit)
	if att.SrcProfile != nil {
		blob, err := s.privateProfile(unit, att.Payload, att.SrcProfile)
		if err != nil {
			s.logger.Errorf("Failed to build private profile of transaction %d: %v", txID, err)
		} else {
			text += "\n\n" + s.texts.T(lang, i18n.SavePrivateProfile, blob)
		}
	}
	if s.referralsEnabled() {
		text += "\n\n" + s.texts.T(lang, i18n.ReferralProgram, s.whitelistedDomains(), formatUSD(s.cfg.ReferralRewardUSD))
	}
	s.send(ctx, ra.DeviceAddress, text)
	return nil
}

func (s *Service) privateProfile(unit, rawPayload string, rawSrc *string) (string, error) {
	payload, err := attestation.Decode(rawPayload)
	if err != nil {
		return "", err
	}
	src, err := attestation.DecodeSrcProfile(rawSrc)
	if err != nil {
		return "", err
	}
	return attestation.PrivateProfile(unit, payload, src)
}
