package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

// ApplyTransition moves a transaction from one state to another and runs extra
// in the same database transaction. The update only matches rows still in
// from, so a concurrent transition makes it fail with ErrStaleState.
func (r *Repository) ApplyTransition(ctx context.Context, txID uint, from, to models.TxState, extra func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("transaction_id = ? AND state = ?", txID, from).
			Update("state", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		r.logger.Errorf("transition %s -> %s of tx %d failed: %v", from, to, txID, err)
		return fmt.Errorf("failed to move tx %d to %s: %w", txID, to, err)
	}
	r.logger.Debugf("tx %d: %s -> %s", txID, from, to)
	return nil
}

// ConfirmPayment records finality and stores the issued code.
func (r *Repository) ConfirmPayment(ctx context.Context, txID uint, from, to models.TxState, email *models.VerificationEmail) error {
	return r.ApplyTransition(ctx, txID, from, to, func(tx *gorm.DB) error {
		now := time.Now()
		err := tx.Model(&models.Transaction{}).
			Where("transaction_id = ?", txID).
			Updates(map[string]interface{}{"is_confirmed": true, "confirmation_date": &now}).Error
		if err != nil {
			return err
		}
		return tx.Create(email).Error
	})
}

func (r *Repository) MarkEmailSent(ctx context.Context, txID uint, from, to models.TxState) error {
	return r.ApplyTransition(ctx, txID, from, to, func(tx *gorm.DB) error {
		return setEmailSent(tx, txID, true)
	})
}

// ResetEmailSent is the resend request: the same code goes out again.
func (r *Repository) ResetEmailSent(ctx context.Context, txID uint, from, to models.TxState) error {
	return r.ApplyTransition(ctx, txID, from, to, func(tx *gorm.DB) error {
		return setEmailSent(tx, txID, false)
	})
}

func setEmailSent(tx *gorm.DB, txID uint, sent bool) error {
	return tx.Model(&models.VerificationEmail{}).
		Where("transaction_id = ?", txID).
		Update("is_sent", sent).Error
}

// RecordCodeMatch closes the verification successfully and queues the attestation.
func (r *Repository) RecordCodeMatch(ctx context.Context, txID uint, from, to models.TxState, attestation *models.AttestationUnit) error {
	return r.ApplyTransition(ctx, txID, from, to, func(tx *gorm.DB) error {
		if err := setResult(tx, txID, true); err != nil {
			return err
		}
		return tx.Create(attestation).Error
	})
}

// RecordCodeMismatch stores the attempt counter and closes the verification
// as failed when to is terminal.
func (r *Repository) RecordCodeMismatch(ctx context.Context, txID uint, from, to models.TxState, attempts int) error {
	return r.ApplyTransition(ctx, txID, from, to, func(tx *gorm.DB) error {
		err := tx.Model(&models.VerificationEmail{}).
			Where("transaction_id = ?", txID).
			Update("number_of_attempts", attempts).Error
		if err != nil {
			return err
		}
		if to == models.StateFailed {
			return setResult(tx, txID, false)
		}
		return nil
	})
}

func setResult(tx *gorm.DB, txID uint, result bool) error {
	now := time.Now()
	res := tx.Model(&models.VerificationEmail{}).
		Where("transaction_id = ? AND result IS NULL", txID).
		Updates(map[string]interface{}{"result": result, "result_date": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("verification of tx %d is missing or already closed", txID)
	}
	return nil
}
