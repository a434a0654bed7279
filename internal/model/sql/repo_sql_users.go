package sql

import (
	"context"
	"fmt"
	"genstudio/internal/entity"
	"strings"

	"gorm.io/gorm"
)

// CreateUser persists a new user record.
func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if err := r.ready(); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateUser updates an existing user entry.
func (r *GormRepository) UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("invalid user")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return nil
	}
	if v, ok := fields["image_credits"].(int); ok && v < 0 {
		return fmt.Errorf("image credits must not be negative")
	}
	if v, ok := fields["video_credits"].(int); ok && v < 0 {
		return fmt.Errorf("video credits must not be negative")
	}
	return r.db.WithContext(ctx).Model(&entity.DbUser{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateCredential writes one provider's secret and/or model preference.
func (r *GormRepository) UpdateCredential(ctx context.Context, userID uint, provider entity.ProviderID, updates entity.CredentialUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	fields := updates.ToMap(provider)
	if len(fields) == 0 {
		return fmt.Errorf("no credential updates for provider %q", provider)
	}
	return r.db.WithContext(ctx).Model(&entity.DbUser{}).Where("id = ?", userID).Updates(fields).Error
}

// GetUserByEmail loads a user by email.
func (r *GormRepository) GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, fmt.Errorf("email is empty")
	}

	var user entity.DbUser
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(trimmed)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID loads a user by ID.
func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var user entity.DbUser
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns paginated users.
func (r *GormRepository) ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &entity.UserQuery{}
	}

	query := r.db.WithContext(ctx).Model(&entity.DbUser{})
	if trimmed := strings.TrimSpace(params.Tier); trimmed != "" {
		query = query.Where("tier = ?", strings.ToLower(trimmed))
	}
	if keyword := strings.TrimSpace(params.Keyword); keyword != "" {
		kw := "%" + strings.ToLower(keyword) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", kw, kw)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	paged, meta := paginate(query.Order("id DESC"), params.BaseParams, total)
	var users []entity.DbUser
	if err := paged.Find(&users).Error; err != nil {
		return nil, nil, err
	}
	return users, meta, nil
}

// DeleteUser removes a user and the artifacts they own. It returns the storage
// keys of the removed artifacts so the caller can clean up the objects.
func (r *GormRepository) DeleteUser(ctx context.Context, id uint) ([]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var keys []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&entity.DbUser{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&entity.DbArtifact{}).
			Where("user_id = ? AND storage_key <> ''", id).
			Pluck("storage_key", &keys).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&entity.DbArtifact{}).Error
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// CountUsers returns total user count.
func (r *GormRepository) CountUsers(ctx context.Context) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.DbUser{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
