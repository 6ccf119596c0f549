package repository

import (
	"errors"

	"github.com/Fi44er/email_attestation_bot/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleState means a guarded state update found the row in another state.
var ErrStaleState = errors.New("transaction state changed concurrently")

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// insertIgnore inserts value unless a unique constraint rejects it and
// reports whether a row was written.
func insertIgnore(db *gorm.DB, value interface{}) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
