package config

import (
	"errors"
	"fmt"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config はサーバーの設定。環境変数から読み込む。
type Config struct {
	Port string `env:"PORT,default=8080"`

	// ストレージ設定
	StorageType string `env:"STORAGE_TYPE,default=memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT,default=5432"`
	DBUsername  string `env:"DB_USERNAME"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`

	// アップローダー設定
	UploaderType           string `env:"UPLOADER_TYPE,default=memory"`
	ImageKitPrivateKey     string `env:"IMAGEKIT_PRIVATE_KEY"`
	ImageKitUploadEndpoint string `env:"IMAGEKIT_UPLOAD_ENDPOINT"`

	// 静的ファイルの配信ディレクトリ
	StaticDir string `env:"STATIC_DIR,default=public"`
}

// Load は.envと環境変数から設定を読み込む
func Load() (Config, error) {
	// .envは開発環境用。無ければ環境変数のみ使う
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// DatabaseDSN はPostgreSQLの接続文字列を返す。
// DATABASE_URLが無い場合は個別の環境変数から組み立てる（ECS + Secrets Manager対応）。
func (c Config) DatabaseDSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.DBHost != "" && c.DBUsername != "" && c.DBPassword != "" && c.DBName != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=require",
			c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBName), nil
	}
	return "", errors.New("DATABASE_URL or DB_HOST/DB_USERNAME/DB_PASSWORD/DB_NAME is required")
}

// ImageKitReady はImageKitの認証情報が揃っているかを返す
func (c Config) ImageKitReady() bool {
	return c.ImageKitPrivateKey != ""
}
