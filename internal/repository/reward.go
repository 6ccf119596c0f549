package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

// CreateReward reports false when a reward for the same device, address or
// user id already exists.
func (r *Repository) CreateReward(ctx context.Context, reward *models.RewardUnit) (bool, error) {
	created, err := insertIgnore(r.db.WithContext(ctx), reward)
	if err != nil {
		return false, fmt.Errorf("failed to create reward: %w", err)
	}
	return created, nil
}

// CreateReferralReward reports false when the new user was already counted.
func (r *Repository) CreateReferralReward(ctx context.Context, reward *models.ReferralRewardUnit) (bool, error) {
	created, err := insertIgnore(r.db.WithContext(ctx), reward)
	if err != nil {
		return false, fmt.Errorf("failed to create referral reward: %w", err)
	}
	return created, nil
}

func rewardTable(kind models.RewardKind) (interface{}, error) {
	switch kind {
	case models.RewardAttestation:
		return &models.RewardUnit{}, nil
	case models.RewardReferral:
		return &models.ReferralRewardUnit{}, nil
	}
	return nil, fmt.Errorf("unknown reward kind %q", kind)
}

func (r *Repository) GetRewardDispatch(ctx context.Context, kind models.RewardKind, txID uint) (*models.RewardDispatch, error) {
	table, err := rewardTable(kind)
	if err != nil {
		return nil, err
	}

	var d models.RewardDispatch
	err = r.db.WithContext(ctx).
		Model(table).
		Select("transaction_id, device_address, user_address, reward, reward_date").
		Where("transaction_id = ?", txID).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s reward: %w", kind, err)
	}
	return &d, nil
}

// MarkRewardSent stores the payment reference of a reward paid for the first time.
func (r *Repository) MarkRewardSent(ctx context.Context, kind models.RewardKind, txID uint, unit string) (bool, error) {
	table, err := rewardTable(kind)
	if err != nil {
		return false, err
	}

	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(table).
		Where("transaction_id = ? AND reward_date IS NULL", txID).
		Updates(map[string]interface{}{"reward_unit": unit, "reward_date": &now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark %s reward sent: %w", kind, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) UnpaidRewards(ctx context.Context, kind models.RewardKind) ([]uint, error) {
	table, err := rewardTable(kind)
	if err != nil {
		return nil, err
	}

	var ids []uint
	err = r.db.WithContext(ctx).
		Model(table).
		Where("reward_date IS NULL").
		Order("transaction_id").
		Pluck("transaction_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid %s rewards: %w", kind, err)
	}
	return ids, nil
}
