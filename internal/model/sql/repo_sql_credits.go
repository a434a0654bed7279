package sql

import (
	"context"
	"errors"
	"fmt"
	"genstudio/internal/entity"

	"gorm.io/gorm"
)

// CommitGeneration debits one unit from the counter and stores the artifact in
// a single transaction. The debit only applies while the balance is at least
// one, so concurrent requests cannot drive it negative; a lost race returns
// entity.ErrInsufficientCredits and nothing is written.
func (r *GormRepository) CommitGeneration(ctx context.Context, artifact *entity.DbArtifact, counter entity.CreditCounter) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if artifact == nil {
		return 0, fmt.Errorf("artifact is nil")
	}
	if artifact.UserID == 0 {
		return 0, fmt.Errorf("artifact has no owner")
	}

	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, artifact.UserID, counter, 1); err != nil {
			return err
		}
		if err := tx.Create(artifact).Error; err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		var err error
		balance, err = readBalance(tx, artifact.UserID, counter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// AdjustCredits adds delta to a counter and returns the new balance. Negative
// deltas never take the balance below zero.
func (r *GormRepository) AdjustCredits(ctx context.Context, userID uint, counter entity.CreditCounter, delta int) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, fmt.Errorf("invalid user id")
	}

	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta < 0 {
			if err := debit(tx, userID, counter, -delta); err != nil {
				return err
			}
		} else if delta > 0 {
			column := counter.Column()
			result := tx.Model(&entity.DbUser{}).
				Where("id = ?", userID).
				UpdateColumn(column, gorm.Expr(column+" + ?", delta))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		var err error
		balance, err = readBalance(tx, userID, counter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ResetCreditsForTiers sets the balances of active accounts to their tier's
// allotment. Tiers without an allotment are left untouched.
func (r *GormRepository) ResetCreditsForTiers(ctx context.Context, allotments map[entity.Tier]entity.PlanAllotment) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}

	var updated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for tier, allotment := range allotments {
			if allotment.ImageCredits == 0 && allotment.VideoCredits == 0 {
				continue
			}
			result := tx.Model(&entity.DbUser{}).
				Where("tier = ? AND is_active = ?", string(tier), true).
				Updates(map[string]interface{}{
					"image_credits": allotment.ImageCredits,
					"video_credits": allotment.VideoCredits,
				})
			if result.Error != nil {
				return fmt.Errorf("reset tier %s: %w", tier, result.Error)
			}
			updated += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func debit(tx *gorm.DB, userID uint, counter entity.CreditCounter, amount int) error {
	column := counter.Column()
	result := tx.Model(&entity.DbUser{}).
		Where("id = ? AND "+column+" >= ?", userID, amount).
		UpdateColumn(column, gorm.Expr(column+" - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&entity.DbUser{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return entity.ErrInsufficientCredits
}

func readBalance(tx *gorm.DB, userID uint, counter entity.CreditCounter) (int, error) {
	var balances []int
	if err := tx.Model(&entity.DbUser{}).Where("id = ?", userID).Pluck(counter.Column(), &balances).Error; err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, errors.New("account disappeared during credit update")
	}
	return balances[0], nil
}
