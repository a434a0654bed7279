package model

import (
	"context"
	"genstudio/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) ([]string, error)
	CountUsers(ctx context.Context) (int64, error)

	// 服务商凭据
	UpdateCredential(ctx context.Context, userID uint, provider entity.ProviderID, updates entity.CredentialUpdates) error

	// 额度
	AdjustCredits(ctx context.Context, userID uint, counter entity.CreditCounter, delta int) (int, error)
	ResetCreditsForTiers(ctx context.Context, allotments map[entity.Tier]entity.PlanAllotment) (int64, error)

	// 生成结果
	CommitGeneration(ctx context.Context, artifact *entity.DbArtifact, counter entity.CreditCounter) (int, error)
	GetArtifact(ctx context.Context, id uint) (*entity.DbArtifact, error)
	ListArtifacts(ctx context.Context, params *entity.ArtifactQuery) ([]entity.DbArtifact, *entity.Meta, error)
	DeleteArtifact(ctx context.Context, id uint, ownerID uint) (*entity.DbArtifact, error)
	ArtifactStats(ctx context.Context, userID uint) (*entity.ArtifactStats, error)
}
