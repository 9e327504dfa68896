package camera

import (
	"errors"
	"sync"
	"testing"
	"time"

	"kenbikyo/internal/amcam"
)

// TestNewControllerDefaultResolution は構築時の既定解像度選択をテストする
func TestNewControllerDefaultResolution(t *testing.T) {
	testCases := []struct {
		name       string
		modes      []amcam.SimMode
		wantWidth  int
		wantHeight int
	}{
		{
			name: "3モード以上はインデックス2を選ぶ",
			modes: []amcam.SimMode{
				{Width: 2560, Height: 1920},
				{Width: 1280, Height: 960},
				{Width: 640, Height: 480},
			},
			wantWidth:  640,
			wantHeight: 480,
		},
		{
			name: "2モードは小さい方を選ぶ",
			modes: []amcam.SimMode{
				{Width: 1920, Height: 1080},
				{Width: 960, Height: 540},
			},
			wantWidth:  960,
			wantHeight: 540,
		},
		{
			name: "1モードはそのまま選ぶ",
			modes: []amcam.SimMode{
				{Width: 800, Height: 600},
			},
			wantWidth:  800,
			wantHeight: 600,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev := amcam.NewSimDevice("SN001", tc.modes...)
			c, err := NewController(dev)
			if err != nil {
				t.Fatalf("コントローラの作成に失敗しました: %v", err)
			}
			defer func() {
				_ = c.Close()
			}()

			dev.TriggerFrame()
			f, err := c.LatestFrame()
			if err != nil {
				t.Fatalf("フレームの取得に失敗しました: %v", err)
			}
			if f.Width != tc.wantWidth || f.Height != tc.wantHeight {
				t.Errorf("既定解像度が一致しません: got %dx%d, want %dx%d",
					f.Width, f.Height, tc.wantWidth, tc.wantHeight)
			}
		})
	}
}

// TestResolveModeIndex はモード文字列から解像度インデックスへの解決をテストする
func TestResolveModeIndex(t *testing.T) {
	// 面積順が列挙順と一致しない並びで各法則を検証する
	sizes := []Resolution{
		{Width: 1280, Height: 960},
		{Width: 2560, Height: 1920},
		{Width: 640, Height: 480},
	}

	testCases := []struct {
		name      string
		mode      string
		sizes     []Resolution
		wantIdx   int
		expectErr bool
	}{
		{name: "highは面積最大", mode: "high", sizes: sizes, wantIdx: 1},
		{name: "lowは面積最小", mode: "low", sizes: sizes, wantIdx: 2},
		{name: "midは面積順で中央", mode: "mid", sizes: sizes, wantIdx: 0},
		{name: "大文字も受け付ける", mode: "HIGH", sizes: sizes, wantIdx: 1},
		{name: "混在ケースも受け付ける", mode: "Mid", sizes: sizes, wantIdx: 0},
		{
			name: "2モードではmidは利用不可",
			mode: "mid",
			sizes: []Resolution{
				{Width: 1920, Height: 1080},
				{Width: 960, Height: 540},
			},
			expectErr: true,
		},
		{name: "未知のモードはエラー", mode: "ultra", sizes: sizes, expectErr: true},
		{name: "空のモードはエラー", mode: "", sizes: sizes, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx, err := resolveModeIndex(tc.mode, tc.sizes)
			if tc.expectErr {
				if err == nil {
					t.Fatal("エラーが期待されましたが、エラーが発生しませんでした")
				}
				if !errors.Is(err, ErrInvalidMode) {
					t.Errorf("ErrInvalidModeが期待されましたが、別のエラーでした: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラーが発生しました: %v", err)
			}
			if idx != tc.wantIdx {
				t.Errorf("インデックスが一致しません: got %d, want %d", idx, tc.wantIdx)
			}
		})
	}
}

// TestSetResolutionMidScenario は3解像度デバイスでmidが中間解像度を
// 選ぶことをテストする
func TestSetResolutionMidScenario(t *testing.T) {
	dev := amcam.NewSimDevice("SN001",
		amcam.SimMode{Width: 640, Height: 480},
		amcam.SimMode{Width: 1280, Height: 960},
		amcam.SimMode{Width: 2560, Height: 1920},
	)
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	res, err := c.SetResolution("mid")
	if err != nil {
		t.Fatalf("解像度変更に失敗しました: %v", err)
	}
	if res.Width != 1280 || res.Height != 960 {
		t.Errorf("midの解像度が一致しません: got %dx%d, want 1280x960", res.Width, res.Height)
	}
}

// TestSnapshotSizeMatchesResolution は公開スナップショットのサイズが
// 常にその時点の解像度のstride×heightと一致することをテストする
func TestSnapshotSizeMatchesResolution(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	dev.TriggerFrame()
	f, err := c.LatestFrame()
	if err != nil {
		t.Fatalf("フレームの取得に失敗しました: %v", err)
	}
	if want := f.Stride * f.Height; len(f.Data) != want {
		t.Errorf("スナップショットサイズが一致しません: got %d, want %d", len(f.Data), want)
	}

	// 解像度変更でスナップショットは破棄され、新サイズで公開し直される
	if _, err := c.SetResolution("high"); err != nil {
		t.Fatalf("解像度変更に失敗しました: %v", err)
	}
	if _, err := c.LatestFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("解像度変更直後はErrNoFrameが期待されます: %v", err)
	}

	dev.TriggerFrame()
	f, err = c.LatestFrame()
	if err != nil {
		t.Fatalf("フレームの取得に失敗しました: %v", err)
	}
	wantStride := ((2560*24 + 31) / 32) * 4
	if f.Width != 2560 || f.Height != 1920 || f.Stride != wantStride {
		t.Errorf("新解像度の寸法が一致しません: got %dx%d stride=%d", f.Width, f.Height, f.Stride)
	}
	if want := f.Stride * f.Height; len(f.Data) != want {
		t.Errorf("新解像度のスナップショットサイズが一致しません: got %d, want %d", len(f.Data), want)
	}
}

// TestConcurrentReadersObserveCompleteFrames は生産者がフレームを
// 公開し続ける間、複数の読み手が完全なフレームのみを観測することを
// テストする
func TestConcurrentReadersObserveCompleteFrames(t *testing.T) {
	dev := amcam.NewSimDevice("SN001",
		amcam.SimMode{Width: 320, Height: 240},
	)
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	const (
		producerFrames = 200
		readers        = 8
	)
	wantSize := rgbStride(320) * 240

	var wg sync.WaitGroup
	stopCh := make(chan struct{})

	// 生産者: SDKスレッド相当
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < producerFrames; i++ {
			dev.TriggerFrame()
		}
		close(stopCh)
	}()

	// 読み手: HTTPハンドラ相当
	errCh := make(chan error, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}
				f, err := c.LatestFrame()
				if errors.Is(err, ErrNoFrame) {
					continue
				}
				if err != nil {
					errCh <- err
					return
				}
				if len(f.Data) != wantSize {
					errCh <- errors.New("不完全なフレームを観測しました")
					return
				}
			}
		}()
	}

	wg.Wait()
	select {
	case err := <-errCh:
		t.Fatalf("読み手でエラーが発生しました: %v", err)
	default:
	}
}

// TestCloseIdempotent はクローズが冪等であり、取得を再開しないことを
// テストする
func TestCloseIdempotent(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("1回目のクローズに失敗しました: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("2回目のクローズでエラーが発生しました: %v", err)
	}

	if !dev.IsClosed() {
		t.Error("デバイスハンドルが解放されていません")
	}
	if dev.IsStarted() {
		t.Error("クローズ後に取得が再開されています")
	}

	// クローズ後の操作はErrNotConnectedを返す
	if _, err := c.Status(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ErrNotConnectedが期待されましたが、別のエラーでした: %v", err)
	}
	if err := c.SetGain(150); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ErrNotConnectedが期待されましたが、別のエラーでした: %v", err)
	}
}

// TestExposureClamping は露出時間がデバイス範囲へクランプされることを
// テストする
func TestExposureClamping(t *testing.T) {
	testCases := []struct {
		name        string
		requested   int
		wantApplied int
	}{
		{name: "範囲内はそのまま", requested: 50_000, wantApplied: 50_000},
		{name: "下限未満は下限へ", requested: 10, wantApplied: 100},
		{name: "上限超過は上限へ", requested: 2_000_000, wantApplied: 1_000_000},
		{name: "下限ちょうど", requested: 100, wantApplied: 100},
		{name: "上限ちょうど", requested: 1_000_000, wantApplied: 1_000_000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev := amcam.NewSimDevice("SN001")
			dev.SetExposureRange(100, 1_000_000, 10_000)
			c, err := NewController(dev)
			if err != nil {
				t.Fatalf("コントローラの作成に失敗しました: %v", err)
			}
			defer func() {
				_ = c.Close()
			}()

			applied, err := c.SetExposure(tc.requested)
			if err != nil {
				t.Fatalf("露出時間の設定に失敗しました: %v", err)
			}
			if applied != tc.wantApplied {
				t.Errorf("適用値が一致しません: got %d, want %d", applied, tc.wantApplied)
			}

			// デバイスにも適用値が反映されている
			us, err := dev.ExpoTime()
			if err != nil {
				t.Fatalf("露出時間の取得に失敗しました: %v", err)
			}
			if us != tc.wantApplied {
				t.Errorf("デバイス側の値が一致しません: got %d, want %d", us, tc.wantApplied)
			}
		})
	}
}

// TestLatestFrameBeforeFirstFrame は未公開時の読み出しがErrNoFrameで
// 失敗することをテストする（空のバイト列を返してはいけない）
func TestLatestFrameBeforeFirstFrame(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	f, err := c.LatestFrame()
	if !errors.Is(err, ErrNoFrame) {
		t.Fatalf("ErrNoFrameが期待されましたが: frame=%v err=%v", f, err)
	}
	// 「未接続」とは区別できること
	if errors.Is(err, ErrNotConnected) {
		t.Error("ErrNoFrameとErrNotConnectedが区別できていません")
	}
}

// TestPullFailureDropsFrame は取り込み失敗が黙って破棄され、次の
// フレームで回復することをテストする
func TestPullFailureDropsFrame(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	dev.SetFailPull(true)
	dev.TriggerFrame()
	if _, err := c.LatestFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("取り込み失敗時はフレームが公開されないはずです: %v", err)
	}

	dev.SetFailPull(false)
	dev.TriggerFrame()
	if _, err := c.LatestFrame(); err != nil {
		t.Errorf("次のフレームで回復するはずです: %v", err)
	}
}

// TestNonImageEventsIgnored は画像イベント以外が無視されることをテストする
func TestNonImageEventsIgnored(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	c.onEvent(amcam.EventExposure)
	c.onEvent(amcam.EventError)
	c.onEvent(amcam.EventDisconnected)

	if _, err := c.LatestFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("画像イベント以外でフレームが公開されています: %v", err)
	}
}

// TestInvalidModeLeavesStateUntouched は不正なモード要求がデバイス状態を
// 変更しないことをテストする
func TestInvalidModeLeavesStateUntouched(t *testing.T) {
	dev := amcam.NewSimDevice("SN001",
		amcam.SimMode{Width: 1920, Height: 1080},
		amcam.SimMode{Width: 960, Height: 540},
	)
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	dev.TriggerFrame()
	before, err := c.LatestFrame()
	if err != nil {
		t.Fatalf("フレームの取得に失敗しました: %v", err)
	}

	// 2モードのデバイスでmidは利用不可
	if _, err := c.SetResolution("mid"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("ErrInvalidModeが期待されましたが: %v", err)
	}

	// 取得は止まっておらず、スナップショットも破棄されていない
	if !dev.IsStarted() {
		t.Error("不正なモード要求で取得が停止しています")
	}
	after, err := c.LatestFrame()
	if err != nil {
		t.Fatalf("フレームの取得に失敗しました: %v", err)
	}
	if after.Width != before.Width || after.Height != before.Height {
		t.Error("不正なモード要求で解像度が変化しています")
	}
	if c.State() != StatusActive {
		t.Errorf("状態が変化しています: %s", c.State())
	}
}

// TestResolutionChangeFailureMarksError は停止後の段階で失敗した場合に
// StatusErrorとして検出できることをテストする
func TestResolutionChangeFailureMarksError(t *testing.T) {
	dev := amcam.NewSimDevice("SN001")
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	dev.SetFailSetSize(true)
	if _, err := c.SetResolution("high"); err == nil {
		t.Fatal("エラーが期待されましたが、エラーが発生しませんでした")
	}

	if c.State() != StatusError {
		t.Errorf("StatusErrorが期待されましたが: %s", c.State())
	}

	// ヘルスチェック相当のStatusからも状態が見える
	info, err := c.Status()
	if err != nil {
		t.Fatalf("状態の取得に失敗しました: %v", err)
	}
	if info.State != StatusError {
		t.Errorf("Statusから失敗状態が見えません: %s", info.State)
	}
}

// TestFpsComputation は約25fpsの配信でFPS統計が25前後になることを
// テストする
func TestFpsComputation(t *testing.T) {
	if testing.Short() {
		t.Skip("実時間を要するためshortモードではスキップ")
	}

	dev := amcam.NewSimDevice("SN001",
		amcam.SimMode{Width: 320, Height: 240},
	)
	dev.FrameInterval = 40 * time.Millisecond // ≈25fps
	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	// 1秒の計測境界をまたぐまで待つ
	time.Sleep(1300 * time.Millisecond)

	fps := c.Fps()
	if fps < 20.0 || fps > 30.0 {
		t.Errorf("FPSが25前後ではありません: %0.1f", fps)
	}
}
