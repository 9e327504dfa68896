package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Device   DeviceConfig   `yaml:"device"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// DeviceConfig は管理対象カメラの識別情報
//
// シリアル番号のみでデバイスを選択する。USBパスやSDK固有IDは
// 再接続やポート変更で変わりうるため意図的に扱わない
type DeviceConfig struct {
	Name         string `yaml:"device_name"`   // 表示用のデバイス名
	SerialNumber string `yaml:"serial_number"` // 不変なシリアル番号（唯一のセレクタ）
}

// IsConfigured はシリアル番号が設定済みかを返す
func (d DeviceConfig) IsConfigured() bool {
	return d.SerialNumber != ""
}

// SnapshotConfig は観察記録用の定期静止画保存の設定
type SnapshotConfig struct {
	Enabled       bool          `yaml:"enabled"`        // 定期保存の有効/無効
	Interval      time.Duration `yaml:"interval"`       // 撮影間隔
	OutputDir     string        `yaml:"output_dir"`     // 保存先ディレクトリ
	RetentionDays int           `yaml:"retention_days"` // 保持期間（日数）
}

// DeviceConfigPath はデバイス設定ファイルのパスを返す
// 環境変数DEVICE_CONFIGで上書きできる
func DeviceConfigPath() string {
	return getEnvOrDefault("DEVICE_CONFIG", "device_config.yaml")
}

// Load は設定を読み込む
// サーバー設定は環境変数から、デバイス識別はデバイス設定ファイルから読む
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Device: LoadDevice(DeviceConfigPath()),
		Snapshot: SnapshotConfig{
			Enabled:       getEnvAsBoolOrDefault("SNAPSHOT_ENABLED", false),
			Interval:      time.Duration(getEnvAsIntOrDefault("SNAPSHOT_INTERVAL", 10)) * time.Second,
			OutputDir:     getEnvOrDefault("SNAPSHOT_DIR", "snapshots"),
			RetentionDays: getEnvAsIntOrDefault("SNAPSHOT_RETENTION_DAYS", 30),
		},
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadDevice はデバイス設定ファイルを読み込む
//
// ファイルが無い・読めない場合は空の設定を返す。
// エンドポイント側が「not-configured」として明確に報告するため、
// ここではエラーを表面化しない
func LoadDevice(path string) DeviceConfig {
	var dev DeviceConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceConfig{}
	}
	if err := yaml.Unmarshal(data, &dev); err != nil {
		return DeviceConfig{}
	}
	return dev
}

// SaveDevice はデバイス設定ファイルを書き出す
func SaveDevice(path string, dev DeviceConfig) error {
	data, err := yaml.Marshal(dev)
	if err != nil {
		return fmt.Errorf("デバイス設定のエンコードに失敗: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("デバイス設定の書き込みに失敗: %w", err)
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// シリアル未設定は許容する（not-configuredとして起動する）
	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
