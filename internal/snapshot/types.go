package snapshot

import (
	"time"
)

// Config は静止画保存の設定
type Config struct {
	Enabled       bool          `json:"enabled"`        // 有効/無効
	Interval      time.Duration `json:"interval"`       // 撮影間隔
	OutputDir     string        `json:"output_dir"`     // 保存先ディレクトリ
	RetentionDays int           `json:"retention_days"` // 保持期間（日数）
	Quality       int           `json:"quality"`        // タイムラプス動画品質 (1-5)
}

// Still は保存済み静止画の情報
type Still struct {
	FilePath string    `json:"file_path"` // ファイルパス
	FileSize int64     `json:"file_size"` // ファイルサイズ
	TakenAt  time.Time `json:"taken_at"`  // 撮影時刻
}

// StatusInfo は静止画保存の状態情報
type StatusInfo struct {
	Enabled     bool      `json:"enabled"`
	TotalStills int       `json:"total_stills"`
	StorageUsed int64     `json:"storage_used"`
	LastSaved   time.Time `json:"last_saved"`
}

// DefaultConfig はデフォルトの静止画保存設定を返す
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Interval:      10 * time.Second,
		OutputDir:     "snapshots",
		RetentionDays: 30,
		Quality:       3,
	}
}
