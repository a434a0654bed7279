package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"genstudio"`
	DBPath     string `env:"DBPath" envDefault:"datas/genstudio.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/artifacts"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// 生成结果是否转存到对象存储
	ArtifactStorageEnabled bool `env:"ARTIFACT_STORAGE_ENABLED" envDefault:"true"`

	// 图像服务商
	ImagenBaseURL      string        `env:"IMAGEN_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	ImagenDefaultModel string        `env:"IMAGEN_DEFAULT_MODEL" envDefault:"imagen-3.0-generate-001"`
	ImagenTimeout      time.Duration `env:"IMAGEN_TIMEOUT" envDefault:"60s"`

	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIDefaultModel string        `env:"OPENAI_DEFAULT_MODEL" envDefault:"dall-e-3"`
	OpenAITimeout      time.Duration `env:"OPENAI_TIMEOUT" envDefault:"90s"`

	HuggingFaceBaseURL      string        `env:"HUGGINGFACE_BASE_URL" envDefault:"https://router.huggingface.co/hf-inference/models"`
	HuggingFaceWhoAmIURL    string        `env:"HUGGINGFACE_WHOAMI_URL" envDefault:"https://huggingface.co/api/whoami-v2"`
	HuggingFaceDefaultModel string        `env:"HUGGINGFACE_DEFAULT_MODEL" envDefault:"stabilityai/stable-diffusion-xl-base-1.0"`
	HuggingFaceTimeout      time.Duration `env:"HUGGINGFACE_TIMEOUT" envDefault:"60s"`

	// 多个服务商同时请求，仍按优先级取结果
	ParallelProviderAttempts bool `env:"PARALLEL_PROVIDER_ATTEMPTS" envDefault:"false"`

	// 视频后端: gradio | volcengine
	VideoBackend          string        `env:"VIDEO_BACKEND" envDefault:"gradio"`
	GradioSpaceURL        string        `env:"GRADIO_SPACE_URL" envDefault:"https://dream2589632147-dream-wan2-2-faster-pro.hf.space"`
	GradioModel           string        `env:"GRADIO_MODEL" envDefault:"dream2589632147/Dream-wan2-2-faster-Pro"`
	GradioTimeout         time.Duration `env:"GRADIO_TIMEOUT" envDefault:"5m"`
	VolcengineAPIKey      string        `env:"VOLCENGINE_API_KEY" envDefault:""`
	VolcengineVideoModel  string        `env:"VOLCENGINE_VIDEO_MODEL" envDefault:"doubao-seedance-1-0-lite-i2v-250428"`
	VolcenginePollEvery   time.Duration `env:"VOLCENGINE_POLL_INTERVAL" envDefault:"5s"`
	VideoTimeout          time.Duration `env:"VIDEO_TIMEOUT" envDefault:"10m"`
	SourceImageFetchLimit int64         `env:"SOURCE_IMAGE_FETCH_LIMIT" envDefault:"20971520"`
	VideoFetchLimit       int64         `env:"VIDEO_FETCH_LIMIT" envDefault:"524288000"`

	// 扣费计数器: image | video
	ImageCreditCounter string `env:"IMAGE_CREDIT_COUNTER" envDefault:"image"`
	VideoCreditCounter string `env:"VIDEO_CREDIT_COUNTER" envDefault:"image"`

	SampleImageURL string `env:"SAMPLE_IMAGE_URL" envDefault:"https://via.placeholder.com/1024x1024?text=Sample+Image"`
	SampleVideoURL string `env:"SAMPLE_VIDEO_URL" envDefault:"https://via.placeholder.com/512x512?text=Sample+Video"`
	NoKeyImageURL  string `env:"NO_KEY_IMAGE_URL" envDefault:"https://via.placeholder.com/1024x1024?text=No+API+Key"`
	NoKeyVideoURL  string `env:"NO_KEY_VIDEO_URL" envDefault:"https://via.placeholder.com/512x512?text=No+API+Key"`

	// 套餐额度续期，空表示关闭
	CreditRenewalCron string `env:"CREDIT_RENEWAL_CRON" envDefault:""`

	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:""`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:""`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"genstudio"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

// ParseConfig 读取 .env（若存在）后解析环境变量
func ParseConfig() (Config, error) {
	if err := loadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		logrus.WithError(err).Error("load env file error")
		return Config{}, err
	}

	var conf Config
	if err := env.Parse(&conf); err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	logrus.WithFields(logrus.Fields{
		"db_type":       conf.DBType,
		"storage_type":  conf.StorageType,
		"video_backend": conf.VideoBackend,
	}).Debug("config loaded")
	return conf, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	for _, counter := range []string{c.ImageCreditCounter, c.VideoCreditCounter} {
		switch strings.ToLower(strings.TrimSpace(counter)) {
		case "image", "video":
		default:
			return errors.New("credit counter must be image or video, got " + counter)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.VideoBackend)) {
	case "gradio":
	case "volcengine":
		if strings.TrimSpace(c.VolcengineAPIKey) == "" {
			return errors.New("VOLCENGINE_API_KEY is required when VIDEO_BACKEND=volcengine")
		}
	default:
		return errors.New("unsupported video backend: " + c.VideoBackend)
	}
	return nil
}

func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}
	// 已设置的环境变量优先
	return godotenv.Load(path)
}
