package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/email_attestation_bot/internal/attestation"
	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/mailer"
	"github.com/Fi44er/email_attestation_bot/internal/models"
)

const (
	cmdAgain          = "again"
	cmdSendEmailAgain = "send email again"
	cmdPrivate        = "private"
	cmdPublic         = "public"
	cmdSelectLanguage = "select language"
)

// sendVerificationEmail mails the code of txID unless it was already sent
// or the verification is over. A failed send leaves the email unsent so the
// retry sweep picks it up.
func (s *Service) sendVerificationEmail(ctx context.Context, txID uint) error {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	ve, err := s.repo.GetVerificationEmail(ctx, txID)
	if err != nil {
		return err
	}
	if tx == nil || ve == nil {
		return fmt.Errorf("%w: no verification email for transaction %d", ErrIntegrity, txID)
	}
	if ve.IsSent || ve.Result != nil || !tx.State.CodePending() {
		return nil
	}

	ra, err := s.repo.GetReceivingAddressByAddress(ctx, tx.ReceivingAddress)
	if err != nil {
		return err
	}
	if ra == nil {
		return fmt.Errorf("%w: unknown receiving address %s", ErrIntegrity, tx.ReceivingAddress)
	}
	lang := s.userLang(ctx, ra.DeviceAddress)

	err = s.mailer.SendMail(ctx, mailer.Mail{
		To:      ve.UserEmail,
		Subject: s.texts.T(lang, i18n.VerificationEmailSubject),
		Text:    s.texts.T(lang, i18n.VerificationEmailText, ve.Code, s.cfg.DeviceName),
		HTML:    s.texts.T(lang, i18n.VerificationEmailHTML, ve.Code, s.cfg.DeviceName),
	})
	if err != nil {
		s.metrics.Email("failed")
		s.logger.Errorf("Failed to send verification email of transaction %d: %v", txID, err)
		s.notifyAdmin(ctx, "failed to send mail", fmt.Sprintf("failed to send mail to %s: %v", ve.UserEmail, err))
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	to, _, err := models.Next(tx.State, models.Event{Kind: models.EventEmailSent})
	if err != nil {
		return err
	}
	if err := s.repo.MarkEmailSent(ctx, txID, tx.State, to); err != nil {
		return err
	}
	s.metrics.Email("sent")
	s.metrics.Transition(string(tx.State), string(to))

	s.send(ctx, ra.DeviceAddress, s.texts.T(lang, i18n.EmailWasSent, ve.UserEmail), cmdSendEmailAgain)
	return nil
}

// resendEmail clears the sent flag of a pending verification and mails the
// same code again.
func (s *Service) resendEmail(ctx context.Context, c *conversation, txID uint) error {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return err
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		unlock()
		return err
	}
	if tx == nil {
		unlock()
		return fmt.Errorf("%w: transaction %d disappeared", ErrIntegrity, txID)
	}
	to, _, err := models.Next(tx.State, models.Event{Kind: models.EventResendRequested})
	if errors.Is(err, models.ErrTerminalState) {
		unlock()
		return s.finalReply(ctx, c, tx)
	}
	if err != nil {
		unlock()
		return err
	}
	if err := s.repo.ResetEmailSent(ctx, txID, tx.State, to); err != nil {
		unlock()
		return err
	}
	s.metrics.Transition(string(tx.State), string(to))
	unlock()

	if err := s.sendVerificationEmail(ctx, txID); err != nil {
		// the sweep retries delivery
		s.logger.Warnf("Resend of transaction %d failed: %v", txID, err)
	}
	return nil
}

// checkCode compares a chat message with the pending code of txID.
func (s *Service) checkCode(ctx context.Context, c *conversation, ra *models.ReceivingAddress, txID uint) error {
	unlock, err := s.locks.Lock(ctx, txLock(txID))
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	ve, err := s.repo.GetVerificationEmail(ctx, txID)
	if err != nil {
		return err
	}
	if tx == nil || ve == nil {
		return fmt.Errorf("%w: no verification email for transaction %d", ErrIntegrity, txID)
	}

	if tx.State.Terminal() {
		unlock()
		return s.finalReply(ctx, c, tx)
	}

	if c.text == ve.Code {
		effects, err := s.acceptCode(ctx, tx, ra, ve)
		if err != nil {
			return err
		}
		c.add(s.texts.T(c.lang, i18n.CodeConfirmed, ve.UserEmail))
		c.flush(ctx)
		unlock()
		return s.runEffects(ctx, txID, effects)
	}

	if c.text == "" || strings.HasPrefix(c.text, cmdSelectLanguage+" ") {
		c.add(s.texts.T(c.lang, i18n.EmailWasSent, ve.UserEmail))
		c.flush(ctx, cmdSendEmailAgain)
		return nil
	}

	attempts := ve.NumberOfAttempts + 1
	to, _, err := models.Next(tx.State, models.Event{
		Kind:        models.EventCodeMismatched,
		Attempts:    attempts,
		MaxAttempts: s.cfg.MaxAttempts,
	})
	if err != nil {
		return err
	}
	if err := s.repo.RecordCodeMismatch(ctx, txID, tx.State, to, attempts); err != nil {
		return err
	}
	s.metrics.Transition(string(tx.State), string(to))

	if to == models.StateFailed {
		s.logger.Infof("Verification of transaction %d failed after %d attempts", txID, attempts)
		c.add(s.texts.T(c.lang, i18n.CurrentAttestationFailed))
		c.flush(ctx, cmdAgain)
		return nil
	}

	if left := s.cfg.MaxAttempts - attempts; left == 1 {
		c.add(s.texts.T(c.lang, i18n.WrongVerificationCodeLast))
	} else {
		c.add(s.texts.T(c.lang, i18n.WrongVerificationCode, left))
	}
	c.add(s.texts.T(c.lang, i18n.EmailWasSent, ve.UserEmail))
	c.flush(ctx, cmdSendEmailAgain)
	return nil
}

// acceptCode builds the attestation payload and records the success in one
// database transaction.
func (s *Service) acceptCode(ctx context.Context, tx *models.Transaction, ra *models.ReceivingAddress, ve *models.VerificationEmail) ([]models.Effect, error) {
	to, effects, err := models.Next(tx.State, models.Event{Kind: models.EventCodeMatched})
	if err != nil {
		return nil, err
	}

	public := ra.PostPublicly != nil && *ra.PostPublicly
	payload, src, err := s.payloads.Build(ra.UserAddress, ve.UserEmail, public)
	if err != nil {
		return nil, err
	}
	encoded, err := attestation.Encode(payload)
	if err != nil {
		return nil, err
	}
	srcProfile, err := attestation.EncodeSrcProfile(src)
	if err != nil {
		return nil, err
	}

	err = s.repo.RecordCodeMatch(ctx, tx.TransactionID, tx.State, to, &models.AttestationUnit{
		TransactionID: tx.TransactionID,
		Address:       ra.UserAddress,
		Payload:       encoded,
		SrcProfile:    srcProfile,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition(string(tx.State), string(to))
	s.logger.Infof("Email of transaction %d verified", tx.TransactionID)
	return effects, nil
}

// runEffects performs the follow-ups of a verified code. Each runs on its
// own: a failure is reported and left to the retry sweep.
func (s *Service) runEffects(ctx context.Context, txID uint, effects []models.Effect) error {
	for _, effect := range effects {
		var err error
		switch effect {
		case models.EffectPublishAttestation:
			err = s.PostAttestation(ctx, txID)
		case models.EffectAttributeRewards:
			err = s.AttributeRewards(ctx, txID)
		}
		if err != nil {
			s.logger.Errorf("Follow-up %d of transaction %d failed: %v", effect, txID, err)
		}
	}
	return nil
}

// finalReply answers a device whose latest verification is over.
func (s *Service) finalReply(ctx context.Context, c *conversation, tx *models.Transaction) error {
	switch tx.State {
	case models.StateFailed:
		c.add(s.texts.T(c.lang, i18n.PreviousAttestationFailed))
		c.flush(ctx, cmdAgain)
		return nil
	case models.StateVerified:
		att, err := s.repo.GetAttestation(ctx, tx.TransactionID)
		if err != nil {
			return err
		}
		if att == nil || att.AttestationDate == nil {
			ve, err := s.repo.GetVerificationEmail(ctx, tx.TransactionID)
			if err != nil {
				return err
			}
			email := ""
			if ve != nil {
				email = ve.UserEmail
			}
			c.add(s.texts.T(c.lang, i18n.CodeConfirmed, email))
			c.flush(ctx)
			return nil
		}
		c.add(s.texts.T(c.lang, i18n.AlreadyAttested, att.AttestationDate.UTC().Format("2006-01-02 15:04:05")))
		c.flush(ctx, cmdAgain)
		return nil
	}
	return fmt.Errorf("transaction %d is not final: %s", tx.TransactionID, tx.State)
}
