package camera

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"kenbikyo/internal/amcam"
)

const (
	// frameBits はピクセル深度（RGB888固定）
	frameBits = 24

	// resolutionSettleDelay は取得停止後にファームウェアが落ち着くまでの
	// 待機時間。このデバイス系列で経験的に必要とされる値
	resolutionSettleDelay = 200 * time.Millisecond
)

// rgbStride は1行のバイト数を4バイト境界へ切り上げて返す
func rgbStride(width int) int {
	return ((width*frameBits + 31) / 32) * 4
}

// Frame は公開済みの完全なフレームのスナップショット
// 公開後に変更されることはなく、複数の読み手が共有してよい
type Frame struct {
	Data   []byte // stride×height バイトの生ピクセル
	Width  int    // 公開時点の画像幅
	Height int    // 公開時点の画像高さ
	Stride int    // 1行のバイト数（4バイト境界）
}

// Controller は開かれたカメラハンドルを排他所有し、
// フレーム取得・設定操作・FPS統計を担う
type Controller struct {
	dev amcam.Device

	// ctrlMu は停止・再設定・再開の順序列と全設定操作を直列化する
	ctrlMu sync.Mutex
	status Status
	closed bool

	// bufMu は取り込みバッファと寸法の組を守る
	// サイズだけ更新されて確保が追いついていない状態を読ませないため、
	// 幅・高さ・ストライド・バッファは必ず一緒に更新する
	bufMu  sync.Mutex
	buf    []byte
	width  int
	height int
	stride int

	// frameMu は公開スナップショットとFPS統計を守る
	// 取り込みとエンコードはこのロックの外で行う
	frameMu    sync.Mutex
	latest     *Frame
	frameCount int
	lastTick   time.Time
	fps        float64
}

// NewController は開かれたハンドルを受け取り、既定解像度の選択・
// バッファ確保・プルモード取得の開始まで行う
//
// デバイスがサイズを報告できない場合は縮退状態（サイズ0）で続行する。
// 取得開始に失敗した場合のみエラーを返し、ハンドルは呼び出し側に残る。
func NewController(dev amcam.Device) (*Controller, error) {
	c := &Controller{
		dev:      dev,
		status:   StatusActive,
		lastTick: time.Now(),
	}

	// 起動プレビューを軽くするための控えめな既定解像度を選ぶ
	// 3モード以上なら中位（インデックス2）、1〜2モードなら小さい方
	cnt, err := dev.ResolutionNumber()
	if err != nil {
		cnt = 0
	}
	var defaultIdx int
	switch {
	case cnt <= 0:
		defaultIdx = 0
	case cnt > 2:
		defaultIdx = 2
	default:
		defaultIdx = cnt - 1
	}
	if err := dev.SetSize(defaultIdx); err != nil {
		// 希望インデックスが拒否されたらインデックス0へフォールバック
		_ = dev.SetSize(0)
	}

	w, h, err := dev.Size()
	if err != nil {
		w, h = 0, 0
	}
	c.width, c.height = w, h
	c.stride = rgbStride(w)
	c.buf = make([]byte, c.stride*h)

	if err := dev.StartPullModeWithCallback(c.onEvent); err != nil {
		return nil, fmt.Errorf("プルモード取得の開始に失敗: %w", err)
	}
	return c, nil
}

// onEvent はSDK所有のスレッドから呼ばれるフレーム準備完了コールバック
func (c *Controller) onEvent(ev amcam.Event) {
	if ev != amcam.EventImage {
		return
	}

	// 取り込みは公開用ロックの外で行う
	// エンコード中の読み手が生産者のスループットを直列化させないため
	c.bufMu.Lock()
	if len(c.buf) == 0 {
		c.bufMu.Unlock()
		return
	}
	if err := c.dev.PullImage(c.buf, frameBits); err != nil {
		// 一時的なI/Oエラー。このフレームは黙って破棄する
		c.bufMu.Unlock()
		return
	}
	snap := &Frame{
		Data:   append([]byte(nil), c.buf...),
		Width:  c.width,
		Height: c.height,
		Stride: c.stride,
	}
	c.bufMu.Unlock()

	now := time.Now()
	c.frameMu.Lock()
	c.latest = snap
	c.frameCount++
	if elapsed := now.Sub(c.lastTick); elapsed >= time.Second {
		c.fps = float64(c.frameCount) / elapsed.Seconds()
		c.frameCount = 0
		c.lastTick = now
	}
	c.frameMu.Unlock()
}

// LatestFrame は最新の公開スナップショットを返す
// まだ1フレームも公開されていない場合はErrNoFrameを返す
func (c *Controller) LatestFrame() (*Frame, error) {
	c.frameMu.Lock()
	f := c.latest
	c.frameMu.Unlock()

	if f == nil {
		return nil, ErrNoFrame
	}
	return f, nil
}

// Fps は直近の計測ウィンドウのフレームレートを返す
func (c *Controller) Fps() float64 {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.fps
}

// State はコントローラの動作状態を返す
func (c *Controller) State() Status {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	if c.closed {
		return StatusInactive
	}
	return c.status
}

// Status は現在のカメラ状態を取得する
func (c *Controller) Status() (StatusInfo, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return StatusInfo{}, ErrNotConnected
	}

	gain, err := c.dev.ExpoAGain()
	if err != nil {
		return StatusInfo{}, fmt.Errorf("ゲインの取得に失敗: %w", err)
	}
	us, err := c.dev.ExpoTime()
	if err != nil {
		return StatusInfo{}, fmt.Errorf("露出時間の取得に失敗: %w", err)
	}
	ae, err := c.dev.AutoExpoEnable()
	if err != nil {
		return StatusInfo{}, fmt.Errorf("自動露出状態の取得に失敗: %w", err)
	}

	c.bufMu.Lock()
	w, h := c.width, c.height
	c.bufMu.Unlock()

	return StatusInfo{
		Width:        w,
		Height:       h,
		Gain:         gain,
		ExposureUs:   us,
		AutoExposure: ae,
		Fps:          math.Round(c.Fps()*10) / 10,
		State:        c.status,
	}, nil
}

// SerialNumber は開いているハンドルのシリアル番号を取得する
func (c *Controller) SerialNumber() (string, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return "", ErrNotConnected
	}
	sn, err := c.dev.SerialNumber()
	if err != nil {
		return "", fmt.Errorf("シリアル番号の取得に失敗: %w", err)
	}
	return sn, nil
}

// ByteOrderBGR はピクセルのバイト順がBGRかを返す
// 一部ファームウェアはBGR順で出力する。フラグが読めない場合はRGB扱い
func (c *Controller) ByteOrderBGR() bool {
	v, err := c.dev.Option(amcam.OptionByteOrder)
	if err != nil {
		return false
	}
	return v != 0
}

// SetGain はアナログゲイン（%）を設定する
// 値の検証はデバイス側に委ねる
func (c *Controller) SetGain(percent int) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return ErrNotConnected
	}
	if err := c.dev.SetExpoAGain(percent); err != nil {
		return fmt.Errorf("ゲインの設定に失敗: %w", err)
	}
	return nil
}

// SetExposure は露出時間（µs）をデバイスの許容範囲へクランプして設定し、
// 実際に適用した値を返す
//
// 手動制御を確実にするには呼び出し側が先に自動露出を無効化すること。
func (c *Controller) SetExposure(us int) (int, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return 0, ErrNotConnected
	}

	lo, hi, _, err := c.dev.ExpTimeRange()
	if err != nil {
		return 0, fmt.Errorf("露出時間範囲の取得に失敗: %w", err)
	}
	applied := us
	if applied < lo {
		applied = lo
	}
	if applied > hi {
		applied = hi
	}
	if err := c.dev.SetExpoTime(applied); err != nil {
		return 0, fmt.Errorf("露出時間の設定に失敗: %w", err)
	}
	return applied, nil
}

// SetAutoExposure は自動露出を有効・無効にする
func (c *Controller) SetAutoExposure(enabled bool) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return ErrNotConnected
	}
	if err := c.dev.SetAutoExpoEnable(enabled); err != nil {
		return fmt.Errorf("自動露出の設定に失敗: %w", err)
	}
	return nil
}

// SetResolution は解像度プリセット（high | mid | low）へ切り替える
//
// モードがインデックスへ解決できた場合にのみ停止→待機→再設定→再開の
// 順序列を開始する。解決に失敗した場合は何も変更せずに返る。
// 停止後のいずれかの段階で失敗した場合はStatusErrorのまま残し、
// ヘルスチェックから検出できるようにする。
func (c *Controller) SetResolution(mode string) (Resolution, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return Resolution{}, ErrNotConnected
	}

	sizes, err := c.resolutions()
	if err != nil {
		return Resolution{}, err
	}
	idx, err := resolveModeIndex(mode, sizes)
	if err != nil {
		return Resolution{}, err
	}

	if err := c.dev.Stop(); err != nil {
		c.status = StatusError
		return Resolution{}, fmt.Errorf("連続取得の停止に失敗: %w", err)
	}
	// 停止直後はファームウェアが落ち着くまで待つ
	time.Sleep(resolutionSettleDelay)

	if err := c.dev.SetSize(idx); err != nil {
		c.status = StatusError
		return Resolution{}, fmt.Errorf("解像度の適用に失敗: %w", err)
	}
	w, h, err := c.dev.Size()
	if err != nil {
		c.status = StatusError
		return Resolution{}, fmt.Errorf("解像度の再取得に失敗: %w", err)
	}

	c.bufMu.Lock()
	c.width, c.height = w, h
	c.stride = rgbStride(w)
	c.buf = make([]byte, c.stride*h)
	c.bufMu.Unlock()

	// 旧解像度のスナップショットとFPS統計はここで破棄する
	c.frameMu.Lock()
	c.latest = nil
	c.frameCount = 0
	c.fps = 0
	c.lastTick = time.Now()
	c.frameMu.Unlock()

	if err := c.dev.StartPullModeWithCallback(c.onEvent); err != nil {
		c.status = StatusError
		return Resolution{}, fmt.Errorf("連続取得の再開に失敗: %w", err)
	}

	c.status = StatusActive
	return Resolution{Width: w, Height: h}, nil
}

// Close は連続取得を停止してハンドルを解放する
// 冪等であり、2回目以降の呼び出しは何もせずnilを返す
func (c *Controller) Close() error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.status = StatusInactive

	// 停止はベストエフォート。失敗してもクローズは続行する
	_ = c.dev.Stop()

	if err := c.dev.Close(); err != nil {
		return fmt.Errorf("カメラハンドルの解放に失敗: %w", err)
	}
	return nil
}

// resolutions はデバイスが報告する全解像度モードを取得する
func (c *Controller) resolutions() ([]Resolution, error) {
	cnt, err := c.dev.ResolutionNumber()
	if err != nil {
		return nil, fmt.Errorf("解像度モード数の取得に失敗: %w", err)
	}
	if cnt <= 0 {
		return nil, fmt.Errorf("デバイスが解像度を報告していません")
	}

	sizes := make([]Resolution, 0, cnt)
	for i := 0; i < cnt; i++ {
		w, h, err := c.dev.Resolution(i)
		if err != nil {
			return nil, fmt.Errorf("解像度 %d の取得に失敗: %w", i, err)
		}
		sizes = append(sizes, Resolution{Width: w, Height: h})
	}
	return sizes, nil
}

// resolveModeIndex はモード文字列を解像度インデックスへ解決する
// high = 面積最大、low = 面積最小、mid = 面積順で中央（3モード以上のみ）
func resolveModeIndex(mode string, sizes []Resolution) (int, error) {
	if len(sizes) == 0 {
		return 0, fmt.Errorf("%w: デバイスが解像度を報告していません", ErrInvalidMode)
	}

	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sizes[order[a]].Area() < sizes[order[b]].Area()
	})

	switch strings.ToLower(mode) {
	case ModeHigh:
		return order[len(order)-1], nil
	case ModeLow:
		return order[0], nil
	case ModeMid:
		if len(sizes) <= 2 {
			return 0, fmt.Errorf("%w: %q はこのデバイスでは利用できません（モード数: %d）",
				ErrInvalidMode, mode, len(sizes))
		}
		return order[len(order)/2], nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}
