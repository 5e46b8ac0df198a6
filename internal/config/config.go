// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret string // セッション署名用の秘密鍵
	SessionName   string // セッションクッキー名

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データストア設定
	DatabasePath string // SQLiteデータベースファイルのパス
	RedisURL     string // Redis接続URL（空の場合はRedis連携を無効化）

	// 書影ストレージ設定
	CoverDir string // 書影画像の保存ディレクトリ

	// バックグラウンドジョブ設定
	OverdueCheckMinutes int // 延滞貸出チェックの実行間隔（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// セッション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionName:   getEnv("SESSION_NAME", "lib_session"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// データストア設定
		DatabasePath: getEnv("DATABASE_PATH", filepath.Join("data", "library.db")),
		RedisURL:     getEnv("REDIS_URL", ""),

		// 書影ストレージ設定
		CoverDir: getEnv("COVER_DIR", filepath.Join("data", "covers")),

		// バックグラウンドジョブ設定
		OverdueCheckMinutes: getEnvAsInt("OVERDUE_CHECK_MINUTES", 60),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではセッション秘密鍵は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required in release mode")
		}
	}

	if c.OverdueCheckMinutes <= 0 {
		return fmt.Errorf("OVERDUE_CHECK_MINUTES must be positive")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
