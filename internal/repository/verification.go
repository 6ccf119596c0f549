package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetVerificationEmail(ctx context.Context, txID uint) (*models.VerificationEmail, error) {
	var ve models.VerificationEmail
	err := r.db.WithContext(ctx).First(&ve, "transaction_id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification email: %w", err)
	}
	return &ve, nil
}

// UnsentVerificationEmails lists open verifications whose email never went out.
func (r *Repository) UnsentVerificationEmails(ctx context.Context) ([]models.VerificationEmail, error) {
	var emails []models.VerificationEmail
	err := r.db.WithContext(ctx).
		Where("is_sent = ? AND result IS NULL", false).
		Order("transaction_id").
		Find(&emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unsent emails: %w", err)
	}
	return emails, nil
}
