package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetTransaction(ctx context.Context, txID uint) (*models.Transaction, error) {
	return r.findTransaction(ctx, "transaction_id = ?", txID)
}

func (r *Repository) GetTransactionByPayment(ctx context.Context, receivingAddress, paymentUnit string) (*models.Transaction, error) {
	return r.findTransaction(ctx, "receiving_address = ? AND payment_unit = ?", receivingAddress, paymentUnit)
}

// LatestTransaction returns the most recent payment to a receiving address.
func (r *Repository) LatestTransaction(ctx context.Context, receivingAddress string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("receiving_address = ?", receivingAddress).
		Order("transaction_id DESC").
		First(&tx).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}
	return &tx, nil
}

func (r *Repository) findTransaction(ctx context.Context, query string, args ...interface{}) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where(query, args...).
		First(&tx).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// CreateTransaction stores an accepted payment. A repeated sighting of the
// same payment is not an error: it reports false and tx is left untouched.
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.State == "" {
		tx.State = models.StatePaymentReceived
	}
	created, err := insertIgnore(r.db.WithContext(ctx), tx)
	if err != nil {
		return false, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

// CreateRejectedPayment logs a payment that did not pass validation, once.
func (r *Repository) CreateRejectedPayment(ctx context.Context, p *models.RejectedPayment) (bool, error) {
	created, err := insertIgnore(r.db.WithContext(ctx), p)
	if err != nil {
		return false, fmt.Errorf("failed to log rejected payment: %w", err)
	}
	return created, nil
}

// StalledPayments lists accepted payments still waiting for finality.
func (r *Repository) StalledPayments(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("state = ?", models.StatePaymentReceived).
		Order("transaction_id").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return txs, nil
}
