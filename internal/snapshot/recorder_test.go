package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kenbikyo/internal/amcam"
	"kenbikyo/internal/camera"
)

// newTestController はシミュレートカメラのコントローラを作成する
func newTestController(t *testing.T) (*camera.Controller, *amcam.SimDevice) {
	t.Helper()

	dev := amcam.NewSimDevice("SIM001")
	ctrl, err := camera.NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl, dev
}

// testRecorder はテスト用のRecorderを作成する
func testRecorder(t *testing.T, ctrl *camera.Controller) *Recorder {
	t.Helper()

	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Interval = 20 * time.Millisecond

	return NewRecorder(func() FrameSource {
		if ctrl == nil {
			return nil
		}
		return ctrl
	}, cfg)
}

// TestSaveStillAndList は静止画の保存と一覧取得をテストする
func TestSaveStillAndList(t *testing.T) {
	ctrl, dev := newTestController(t)
	rec := testRecorder(t, ctrl)

	dev.TriggerFrame()

	still, err := rec.SaveStill()
	if err != nil {
		t.Fatalf("静止画の保存に失敗しました: %v", err)
	}
	if still.FileSize <= 0 {
		t.Errorf("ファイルサイズが不正です: %d", still.FileSize)
	}

	data, err := os.ReadFile(still.FilePath)
	if err != nil {
		t.Fatalf("保存ファイルの読み込みに失敗しました: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PNGのデコードに失敗しました: %v", err)
	}
	// 3モード構成の既定解像度は640x480
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("予期しない画像サイズ: %dx%d", cfg.Width, cfg.Height)
	}

	stills, err := rec.ListStills()
	if err != nil {
		t.Fatalf("一覧の取得に失敗しました: %v", err)
	}
	if len(stills) != 1 {
		t.Fatalf("静止画数が一致しません: %d", len(stills))
	}
	if stills[0].FilePath != still.FilePath {
		t.Errorf("パスが一致しません: %q != %q", stills[0].FilePath, still.FilePath)
	}
}

// TestSaveStillWithoutSource は供給元なしでの保存をテストする
func TestSaveStillWithoutSource(t *testing.T) {
	rec := testRecorder(t, nil)

	_, err := rec.SaveStill()
	if !errors.Is(err, camera.ErrNotConnected) {
		t.Errorf("ErrNotConnectedが期待されましたが: %v", err)
	}
}

// TestSaveStillBeforeFirstFrame はフレーム公開前の保存をテストする
func TestSaveStillBeforeFirstFrame(t *testing.T) {
	ctrl, _ := newTestController(t)
	rec := testRecorder(t, ctrl)

	_, err := rec.SaveStill()
	if !errors.Is(err, camera.ErrNoFrame) {
		t.Errorf("ErrNoFrameが期待されましたが: %v", err)
	}
}

// TestCleanupOld は保持期間を超えた静止画の削除をテストする
func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	cfg.RetentionDays = 7
	rec := NewRecorder(func() FrameSource { return nil }, cfg)

	oldName := fmt.Sprintf("snapshot_%s.png",
		time.Now().AddDate(0, 0, -10).Format(stillTimeFormat))
	newName := fmt.Sprintf("snapshot_%s.png",
		time.Now().Format(stillTimeFormat))
	for _, name := range []string{oldName, newName} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644); err != nil {
			t.Fatalf("テストファイルの作成に失敗しました: %v", err)
		}
	}

	if err := rec.CleanupOld(); err != nil {
		t.Fatalf("削除に失敗しました: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, oldName)); !os.IsNotExist(err) {
		t.Error("保持期間を超えたファイルは削除されるべきです")
	}
	if _, err := os.Stat(filepath.Join(dir, newName)); err != nil {
		t.Errorf("保持期間内のファイルは残るべきです: %v", err)
	}
}

// TestParseStillTime はファイル名からの時刻解析をテストする
func TestParseStillTime(t *testing.T) {
	testCases := []struct {
		name   string
		expect bool
	}{
		{"snapshot_20260829_153000.123.png", true},
		{"snapshot_invalid.png", false},
		{"other_20260829_153000.123.png", false},
		{"readme.txt", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseStillTime(tc.name)
			if ok != tc.expect {
				t.Errorf("解析結果が一致しません: got %v, want %v", ok, tc.expect)
			}
		})
	}
}

// TestRecorderStartStop は定期保存ループの開始と停止をテストする
func TestRecorderStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("shortモードでは定期保存テストをスキップします")
	}

	ctrl, dev := newTestController(t)
	dev.FrameInterval = 10 * time.Millisecond
	// 自走配信はStartPullModeWithCallback時に設定されるため、
	// ここでは手動で数フレーム配信してから定期保存を回す
	rec := testRecorder(t, ctrl)

	ctx := context.Background()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("開始に失敗しました: %v", err)
	}

	// 複数インターバル分フレームを配信しながら待つ
	for i := 0; i < 10; i++ {
		dev.TriggerFrame()
		time.Sleep(25 * time.Millisecond)
	}

	if err := rec.Stop(ctx); err != nil {
		t.Fatalf("停止に失敗しました: %v", err)
	}

	stills, err := rec.ListStills()
	if err != nil {
		t.Fatalf("一覧の取得に失敗しました: %v", err)
	}
	if len(stills) < 2 {
		t.Errorf("複数の静止画が保存されるべきです: %d", len(stills))
	}

	status := rec.Status()
	if status.TotalStills != len(stills) {
		t.Errorf("統計が一致しません: %d != %d", status.TotalStills, len(stills))
	}
	if status.StorageUsed <= 0 {
		t.Error("ストレージ使用量が計上されるべきです")
	}

	// 停止後の再停止は安全であること
	if err := rec.Stop(ctx); err != nil {
		t.Errorf("再停止でエラーが発生しました: %v", err)
	}
}
