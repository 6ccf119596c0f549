package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetUser(ctx context.Context, deviceAddress string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "device_address = ?", deviceAddress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUser never fails on a concurrent first contact from the same device.
func (r *Repository) GetOrCreateUser(ctx context.Context, deviceAddress string) (*models.User, error) {
	user := &models.User{DeviceAddress: deviceAddress, Lang: models.LangUnknown}
	if _, err := insertIgnore(r.db.WithContext(ctx), user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", deviceAddress, err)
	}
	return r.GetUser(ctx, deviceAddress)
}

func (r *Repository) SetUserAddress(ctx context.Context, deviceAddress string, userAddress *string) error {
	return r.updateUser(ctx, deviceAddress, "user_address", userAddress)
}

func (r *Repository) SetUserEmail(ctx context.Context, deviceAddress, email string) error {
	return r.updateUser(ctx, deviceAddress, "user_email", email)
}

func (r *Repository) SetUserLang(ctx context.Context, deviceAddress, lang string) error {
	return r.updateUser(ctx, deviceAddress, "lang", lang)
}

func (r *Repository) updateUser(ctx context.Context, deviceAddress, column string, value interface{}) error {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("device_address = ?", deviceAddress).
		Update(column, value)

	if tx.Error != nil {
		r.logger.Errorf("failed to update %s of user %s: %v", column, deviceAddress, tx.Error)
		return fmt.Errorf("failed to update user %s: %w", column, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", deviceAddress)
	}
	return nil
}

func (r *Repository) GetUserLang(ctx context.Context, deviceAddress string) (string, error) {
	user, err := r.GetUser(ctx, deviceAddress)
	if err != nil {
		return "", err
	}
	if user == nil {
		return models.LangUnknown, nil
	}
	return user.Lang, nil
}
