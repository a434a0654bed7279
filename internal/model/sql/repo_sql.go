package sql

import (
	"errors"
	"genstudio/internal/entity"

	"gorm.io/gorm"
)

var errNotInitialised = errors.New("repository not initialised")

// GormRepository implements Repository using GORM
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) ready() error {
	if r == nil || r.db == nil {
		return errNotInitialised
	}
	return nil
}

// paginate applies offset/limit and returns the pagination metadata
func paginate(query *gorm.DB, params entity.BaseParams, total int64) (*gorm.DB, *entity.Meta) {
	page, pageSize := params.Normalize()
	meta := &entity.Meta{
		Total:    total,
		Page:     int64(page),
		PageSize: int64(pageSize),
	}
	return query.Offset((page - 1) * pageSize).Limit(pageSize), meta
}
