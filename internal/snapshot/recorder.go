package snapshot

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kenbikyo/internal/camera"
)

// stillTimeFormat は静止画ファイル名のタイムスタンプ形式
const stillTimeFormat = "20060102_150405.000"

// FrameSource は静止画の供給元
// カメラコントローラがこれを満たす
type FrameSource interface {
	LatestFrame() (*camera.Frame, error)
	ByteOrderBGR() bool
}

// Recorder は定期的な静止画保存を管理する
//
// 供給元は呼び出しごとに引き直す。カメラの再接続でコントローラが
// 差し替わっても、次のキャプチャから新しい供給元を使う。
type Recorder struct {
	source func() FrameSource
	config Config

	mu        sync.RWMutex
	lastFrame *camera.Frame
	lastSaved time.Time
	started   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRecorder は新しいRecorderを作成する
func NewRecorder(source func() FrameSource, config Config) *Recorder {
	return &Recorder{
		source: source,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start は静止画保存を開始する
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("既に開始されています")
	}

	// 保存先ディレクトリを作成
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}

	r.started = true

	r.wg.Add(1)
	go r.captureLoop(ctx)

	r.wg.Add(1)
	go r.cleanupLoop(ctx)

	log.Printf("静止画保存を開始しました (間隔: %v, 保存先: %s)",
		r.config.Interval, r.config.OutputDir)
	return nil
}

// Stop は静止画保存を停止する
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	close(r.stopCh)
	r.mu.Unlock()

	// ワーカーゴルーチンの終了を短いタイムアウトで待機
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Println("ワーカーゴルーチンの停止がタイムアウトしました")
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました。停止処理を中断します")
	}

	log.Println("静止画保存を停止しました")
	return nil
}

// captureLoop は一定間隔で静止画を保存するループ
func (r *Recorder) captureLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			// 前回と同じスナップショットは保存しない
			if r.frameUnchanged() {
				continue
			}
			if _, err := r.SaveStill(); err != nil {
				log.Printf("静止画の保存に失敗しました: %v", err)
			}
		}
	}
}

// frameUnchanged は最新フレームが前回保存時から変わっていないかを返す
func (r *Recorder) frameUnchanged() bool {
	src := r.source()
	if src == nil {
		return true
	}
	f, err := src.LatestFrame()
	if err != nil {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return f == r.lastFrame
}

// SaveStill は最新フレームを1枚保存する
func (r *Recorder) SaveStill() (Still, error) {
	src := r.source()
	if src == nil {
		return Still{}, camera.ErrNotConnected
	}

	f, err := src.LatestFrame()
	if err != nil {
		return Still{}, err
	}

	// エンコードと書き込みはロックの外で行う
	img := f.Image(src.ByteOrderBGR())

	now := time.Now()
	name := fmt.Sprintf("snapshot_%s.png", now.Format(stillTimeFormat))
	path := filepath.Join(r.config.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return Still{}, fmt.Errorf("静止画ファイルの作成に失敗: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		_ = os.Remove(path)
		return Still{}, fmt.Errorf("PNGエンコードに失敗: %w", err)
	}
	if err := file.Close(); err != nil {
		return Still{}, fmt.Errorf("静止画ファイルの書き込みに失敗: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Still{}, fmt.Errorf("ファイル情報の取得に失敗: %w", err)
	}

	r.mu.Lock()
	r.lastFrame = f
	r.lastSaved = now
	r.mu.Unlock()

	return Still{
		FilePath: path,
		FileSize: info.Size(),
		TakenAt:  now,
	}, nil
}

// cleanupLoop は日次で保持期間を超えた静止画を削除するループ
func (r *Recorder) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	// 次の0時に最初の削除を実行し、以降は24時間ごと
	timer := time.NewTimer(time.Until(nextMidnight()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-timer.C:
			if err := r.CleanupOld(); err != nil {
				log.Printf("静止画の削除に失敗しました: %v", err)
			}
			timer.Reset(time.Until(nextMidnight()))
		}
	}
}

// CleanupOld は保持期間を超えた静止画を削除する
func (r *Recorder) CleanupOld() error {
	if r.config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -r.config.RetentionDays)

	stills, err := r.ListStills()
	if err != nil {
		return err
	}

	removed := 0
	for _, s := range stills {
		if s.TakenAt.Before(cutoff) {
			if err := os.Remove(s.FilePath); err != nil {
				log.Printf("静止画の削除に失敗しました: %s: %v", s.FilePath, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Printf("保持期間を超えた静止画を削除しました: %d件", removed)
	}
	return nil
}

// ListStills は保存済み静止画の一覧を撮影時刻順で返す
func (r *Recorder) ListStills() ([]Still, error) {
	entries, err := os.ReadDir(r.config.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Still{}, nil
		}
		return nil, fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	stills := make([]Still, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".png" {
			continue
		}
		takenAt, ok := parseStillTime(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stills = append(stills, Still{
			FilePath: filepath.Join(r.config.OutputDir, entry.Name()),
			FileSize: info.Size(),
			TakenAt:  takenAt,
		})
	}

	sort.Slice(stills, func(i, j int) bool {
		return stills[i].TakenAt.Before(stills[j].TakenAt)
	})
	return stills, nil
}

// Status は静止画保存の状態を返す
func (r *Recorder) Status() StatusInfo {
	r.mu.RLock()
	lastSaved := r.lastSaved
	r.mu.RUnlock()

	info := StatusInfo{
		Enabled:   r.config.Enabled,
		LastSaved: lastSaved,
	}

	stills, err := r.ListStills()
	if err != nil {
		return info
	}
	info.TotalStills = len(stills)
	for _, s := range stills {
		info.StorageUsed += s.FileSize
	}
	return info
}

// Config は現在の設定を返す
func (r *Recorder) Config() Config {
	return r.config
}

// parseStillTime はファイル名から撮影時刻を取り出す
func parseStillTime(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "snapshot_") {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(stillTimeFormat,
		strings.TrimPrefix(base, "snapshot_"), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// nextMidnight は次の0時の時刻を返す
func nextMidnight() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
