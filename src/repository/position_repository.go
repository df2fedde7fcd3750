package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lumixd/src/database"
	"lumixd/src/model"
)

// PositionRepository handles persistence for per-instance token holdings.
// Mutation is exclusive to the order executor and the recovery routine;
// per-key ordering is the executor's responsibility.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating PositionRepository with custom DB instance")

	return &PositionRepository{db: db}
}

// Find fetches the position for an (instance, token) pair.
// Returns (nil, nil) if no position exists.
func (r *PositionRepository) Find(ctx context.Context, instanceID, token string) (*model.Position, error) {
	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Find",
		"instance_id": instanceID,
		"token":       token,
	}).Debug("Fetching position")

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND token = ?", instanceID, token).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Find",
			"instance_id": instanceID,
			"token":       token,
		}).WithError(err).Error("Failed to fetch position")

		return nil, err
	}

	return &position, nil
}

// ApplyFill adjusts a position by the signed delta of an executed order:
// positive for buys, negative for sells. The position row is created on
// the first buy and deleted once the amount reaches zero.
func (r *PositionRepository) ApplyFill(
	ctx context.Context,
	instanceID string,
	token string,
	delta decimal.Decimal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "ApplyFill",
		"instance_id": instanceID,
		"token":       token,
		"delta":       delta.String(),
	}).Debug("Applying fill to position")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var position model.Position

		err := tx.Where("instance_id = ? AND token = ?", instanceID, token).
			First(&position).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if delta.Sign() <= 0 {
				return errors.New("no position to reduce")
			}

			return tx.Create(&model.Position{
				InstanceID: instanceID,
				Token:      token,
				Amount:     delta,
				UpdatedAt:  time.Now(),
			}).Error

		case err != nil:
			return err
		}

		next := position.Amount.Add(delta)
		if next.Sign() <= 0 {
			return tx.Delete(&position).Error
		}

		return tx.Model(&position).Updates(map[string]interface{}{
			"amount":     next,
			"updated_at": time.Now(),
		}).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "ApplyFill",
			"instance_id": instanceID,
			"token":       token,
		}).WithError(err).Error("Failed to apply fill")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "ApplyFill",
		"instance_id": instanceID,
		"token":       token,
		"delta":       delta.String(),
	}).Info("Position updated")

	return nil
}

// ReplaceAll drops every stored position and inserts the given set in a
// single transaction. Used by recovery: the store is a cache of chain
// truth, not an independent ledger.
func (r *PositionRepository) ReplaceAll(ctx context.Context, positions []model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":  "PositionRepository",
		"op":    "ReplaceAll",
		"count": len(positions),
	}).Info("Replacing all positions")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Position{}).Error; err != nil {
			return err
		}

		for i := range positions {
			positions[i].ID = 0
			positions[i].UpdatedAt = time.Now()
			if err := tx.Create(&positions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "ReplaceAll",
		}).WithError(err).Error("Failed to replace positions")

		return err
	}

	return nil
}
