package model

import (
	"context"
	"errors"
	"genstudio/internal/auth"
	"genstudio/internal/config"
	"genstudio/internal/entity"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SeedAdminAccount ensures the configured admin account exists with the admin
// allotment. Existing accounts are promoted but their password is left alone.
func SeedAdminAccount(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	password := strings.TrimSpace(cfg.AdminPassword)
	if email == "" {
		return nil
	}

	allotment := entity.AllotmentFor(entity.TierAdmin)
	existing, err := repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Tier == entity.TierAdmin {
			return nil
		}
		tier := entity.TierAdmin
		logrus.WithField("user_id", existing.ID).Info("promoting configured admin account")
		return repo.UpdateUser(ctx, existing.ID, entity.UserUpdates{
			Tier:         &tier,
			ImageCredits: &allotment.ImageCredits,
			VideoCredits: &allotment.VideoCredits,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	if password == "" {
		return errors.New("ADMIN_PASSWORD is required to create the admin account")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &entity.DbUser{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Tier:         entity.TierAdmin,
		IsActive:     true,
		ImageCredits: allotment.ImageCredits,
		VideoCredits: allotment.VideoCredits,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return err
	}
	logrus.WithField("user_id", admin.ID).Info("seeded admin account")
	return nil
}
