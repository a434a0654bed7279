package storage

import (
	"context"
	"errors"
	"fmt"
	"genstudio/internal/config"
	"strings"
)

const (
	// TypeLocal 表示本地文件系统存储。
	TypeLocal = "local"
	// TypeS3 表示 Amazon S3 或兼容的存储后端。
	TypeS3 = "s3"
	// TypeOSS 表示阿里云 OSS 存储。
	TypeOSS = "oss"
	// TypeCOS 表示腾讯云 COS 存储。
	TypeCOS = "cos"
	// TypeR2 表示 Cloudflare R2 存储。
	TypeR2 = "r2"
)

// ErrEmptyPayload 表示待保存的数据为空。
var ErrEmptyPayload = errors.New("empty payload")

// SaveOptions 控制存储后端如何持久化文件。
//
// Category 用于组织对象路径（例如 artifacts/images/<user>），Extension 为不含前导点的扩展名。
// ContentType 为空时根据扩展名推断。
type SaveOptions struct {
	Category     string
	Extension    string
	BaseName     string
	ContentType  string
	SkipIfExists bool
}

// Storage 持久化生成结果并返回对象键；Delete 对不存在的对象不报错。
type Storage interface {
	Save(ctx context.Context, data []byte, opts SaveOptions) (string, error)
	Delete(ctx context.Context, key string) error
}

// LocalBaseDirProvider 由暴露可通过 HTTP 直接提供服务的本地目录的存储驱动实现。
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

// NewStorage 根据配置实例化存储后端。
func NewStorage(cfg config.Config) (Storage, error) {
	typeName := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	switch typeName {
	case "", TypeLocal:
		return NewLocalStorage(cfg.StorageLocalDir)
	case TypeS3:
		return NewS3Storage(cfg)
	case TypeOSS:
		return NewOSSStorage(cfg)
	case TypeCOS:
		return NewCOSStorage(cfg)
	case TypeR2:
		return NewR2Storage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

func checkSave(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	return ctx.Err()
}
