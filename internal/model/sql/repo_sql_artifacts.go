package sql

import (
	"context"
	"fmt"
	"genstudio/internal/entity"
	"strings"

	"gorm.io/gorm"
)

// GetArtifact loads a single artifact by ID.
func (r *GormRepository) GetArtifact(ctx context.Context, id uint) (*entity.DbArtifact, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid artifact id")
	}
	var artifact entity.DbArtifact
	if err := r.db.WithContext(ctx).First(&artifact, id).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListArtifacts retrieves paginated artifacts, newest first.
func (r *GormRepository) ListArtifacts(ctx context.Context, params *entity.ArtifactQuery) ([]entity.DbArtifact, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &entity.ArtifactQuery{}
	}

	query := r.db.WithContext(ctx).Model(&entity.DbArtifact{})
	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if kind := entity.Modality(strings.ToLower(strings.TrimSpace(params.Kind))); kind.Valid() {
		query = query.Where("kind = ?", string(kind))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	paged, meta := paginate(query.Order("id DESC"), params.BaseParams, total)
	var artifacts []entity.DbArtifact
	if err := paged.Find(&artifacts).Error; err != nil {
		return nil, nil, err
	}
	return artifacts, meta, nil
}

// DeleteArtifact removes an artifact. A non-zero ownerID restricts the delete
// to that owner; other owners' artifacts are reported as not found.
func (r *GormRepository) DeleteArtifact(ctx context.Context, id uint, ownerID uint) (*entity.DbArtifact, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid artifact id")
	}

	var artifact entity.DbArtifact
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id = ?", id)
		if ownerID > 0 {
			query = query.Where("user_id = ?", ownerID)
		}
		if err := query.First(&artifact).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.DbArtifact{}, artifact.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ArtifactStats counts an account's artifacts by kind. userID 0 counts all.
func (r *GormRepository) ArtifactStats(ctx context.Context, userID uint) (*entity.ArtifactStats, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	var rows []struct {
		Kind  string
		Count int64
	}
	query := r.db.WithContext(ctx).Model(&entity.DbArtifact{}).Select("kind, COUNT(*) AS count")
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &entity.ArtifactStats{}
	for _, row := range rows {
		switch entity.Modality(row.Kind) {
		case entity.ModImage:
			stats.Images = row.Count
		case entity.ModVideo:
			stats.Videos = row.Count
		}
		stats.Total += row.Count
	}
	return stats, nil
}
