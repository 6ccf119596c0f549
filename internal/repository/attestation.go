package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetAttestation(ctx context.Context, txID uint) (*models.AttestationUnit, error) {
	var a models.AttestationUnit
	err := r.db.WithContext(ctx).First(&a, "transaction_id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attestation: %w", err)
	}
	return &a, nil
}

// MarkAttestationPosted writes the ledger reference unless one is already stored.
func (r *Repository) MarkAttestationPosted(ctx context.Context, txID uint, unit string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.AttestationUnit{}).
		Where("transaction_id = ? AND attestation_unit IS NULL", txID).
		Updates(map[string]interface{}{"attestation_unit": unit, "attestation_date": &now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark attestation posted: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) UnpostedAttestations(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.AttestationUnit{}).
		Where("attestation_unit IS NULL").
		Order("transaction_id").
		Pluck("transaction_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unposted attestations: %w", err)
	}
	return ids, nil
}

// PostedAttestationsByAddresses returns posted attestations of the given
// addresses, skipping the one paid for by excludePaymentUnit.
func (r *Repository) PostedAttestationsByAddresses(ctx context.Context, addresses []string, excludePaymentUnit string) ([]models.PostedAttestation, error) {
	var rows []models.PostedAttestation
	if len(addresses) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Table("attestation_units").
		Select("attestation_units.transaction_id, attestation_units.address, receiving_addresses.user_address, " +
			"receiving_addresses.device_address, attestation_units.payload, attestation_units.attestation_unit").
		Joins("JOIN transactions ON transactions.transaction_id = attestation_units.transaction_id").
		Joins("JOIN receiving_addresses ON receiving_addresses.receiving_address = transactions.receiving_address").
		Where("attestation_units.address IN ? AND attestation_units.attestation_unit IS NOT NULL", addresses).
		Where("transactions.payment_unit <> ?", excludePaymentUnit).
		Order("attestation_units.transaction_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find attestations of ancestors: %w", err)
	}
	return rows, nil
}
