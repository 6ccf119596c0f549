package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetReceivingAddress(ctx context.Context, deviceAddress, userAddress, userEmail string) (*models.ReceivingAddress, error) {
	var ra models.ReceivingAddress
	err := r.db.WithContext(ctx).
		Where("device_address = ? AND user_address = ? AND user_email = ?", deviceAddress, userAddress, userEmail).
		First(&ra).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receiving address: %w", err)
	}
	return &ra, nil
}

func (r *Repository) GetReceivingAddressByAddress(ctx context.Context, address string) (*models.ReceivingAddress, error) {
	var ra models.ReceivingAddress
	err := r.db.WithContext(ctx).First(&ra, "receiving_address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receiving address %s: %w", address, err)
	}
	return &ra, nil
}

// NextAddressIndex is only meaningful while the caller holds the issuance lock.
func (r *Repository) NextAddressIndex(ctx context.Context) (uint32, error) {
	var max *int64
	err := r.db.WithContext(ctx).
		Model(&models.ReceivingAddress{}).
		Select("MAX(address_index)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read address index: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return uint32(*max + 1), nil
}

func (r *Repository) CreateReceivingAddress(ctx context.Context, ra *models.ReceivingAddress) error {
	if err := r.db.WithContext(ctx).Create(ra).Error; err != nil {
		r.logger.Errorf("failed to create receiving address %s: %v", ra.ReceivingAddress, err)
		return fmt.Errorf("failed to create receiving address: %w", err)
	}
	return nil
}

func (r *Repository) SetPostPublicly(ctx context.Context, receivingAddress string, public bool) error {
	err := r.db.WithContext(ctx).
		Model(&models.ReceivingAddress{}).
		Where("receiving_address = ?", receivingAddress).
		Update("post_publicly", public).
		Error
	if err != nil {
		return fmt.Errorf("failed to update privacy choice: %w", err)
	}
	return nil
}

// SweepCandidates returns receiving addresses holding confirmed, not yet swept payments.
func (r *Repository) SweepCandidates(ctx context.Context, limit int) ([]string, error) {
	var addresses []string
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Distinct().
		Where("is_confirmed = ? AND is_swept = ?", true, false).
		Order("receiving_address").
		Limit(limit).
		Pluck("receiving_address", &addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep candidates: %w", err)
	}
	return addresses, nil
}

func (r *Repository) MarkSwept(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("receiving_address IN ? AND is_confirmed = ?", addresses, true).
		Update("is_swept", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark addresses swept: %w", err)
	}
	return nil
}
