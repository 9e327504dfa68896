package amcam

import (
	"fmt"
	"sync"
	"time"
)

// SimMode はシミュレートデバイスの解像度モードを表す
type SimMode struct {
	Width  int
	Height int
}

// SimDevice はテスト・開発用のシミュレートカメラ
//
// 実デバイスと同じDeviceインターフェースを実装する。
// FrameIntervalを設定して開始すると自走でフレームイベントを配信し、
// 0のままならTriggerFrameで手動配信する（テスト向け）。
type SimDevice struct {
	Serial        string
	DisplayName   string
	Modes         []SimMode
	FrameInterval time.Duration

	// 露出・ゲイン状態
	expLo, expHi, expDef int
	exposureUs           int
	gain                 int
	autoExposure         bool
	byteOrder            int

	// 失敗注入用
	failPull    bool
	failSetSize bool
	failOpen    bool
	failSerial  bool

	// 取得状態
	curIndex   int
	started    bool
	closed     bool
	frameCount uint64
	cb         func(Event)

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSimDevice は新しいシミュレートカメラを作成する
func NewSimDevice(serial string, modes ...SimMode) *SimDevice {
	if len(modes) == 0 {
		// 典型的な顕微鏡カメラの3モード構成
		modes = []SimMode{
			{Width: 2560, Height: 1920},
			{Width: 1280, Height: 960},
			{Width: 640, Height: 480},
		}
	}
	return &SimDevice{
		Serial:       serial,
		DisplayName:  "Sim Camera " + serial,
		Modes:        modes,
		expLo:        100,
		expHi:        1_000_000,
		expDef:       10_000,
		exposureUs:   10_000,
		gain:         100,
		autoExposure: true,
	}
}

// SetExposureRange はテスト用に露出時間範囲を差し替える
func (d *SimDevice) SetExposureRange(lo, hi, def int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expLo, d.expHi, d.expDef = lo, hi, def
}

// SetByteOrder はテスト用にバイト順フラグを設定する（0 = RGB, 1 = BGR）
func (d *SimDevice) SetByteOrder(order int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byteOrder = order
}

// SetFailPull はPullImage失敗を注入する
func (d *SimDevice) SetFailPull(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPull = fail
}

// SetFailSetSize はSetSize失敗を注入する（解像度変更の途中失敗テスト用）
func (d *SimDevice) SetFailSetSize(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSetSize = fail
}

// SetFailSerial はSerialNumber失敗を注入する
func (d *SimDevice) SetFailSerial(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSerial = fail
}

// IsStarted は連続取得中かを返す（テスト検証用）
func (d *SimDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// IsClosed はハンドルが解放済みかを返す（テスト検証用）
func (d *SimDevice) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// SerialNumber はシリアル番号を返す
func (d *SimDevice) SerialNumber() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSerial {
		return "", &HRESULTError{Op: "get_SerialNumber", Code: -1}
	}
	return d.Serial, nil
}

// ResolutionNumber は解像度モード数を返す
func (d *SimDevice) ResolutionNumber() (int, error) {
	return len(d.Modes), nil
}

// Resolution は指定インデックスの解像度を返す
func (d *SimDevice) Resolution(index int) (int, int, error) {
	if index < 0 || index >= len(d.Modes) {
		return 0, 0, fmt.Errorf("解像度インデックスが範囲外です: %d", index)
	}
	return d.Modes[index].Width, d.Modes[index].Height, nil
}

// Size は現在の解像度を返す
func (d *SimDevice) Size() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Modes) == 0 {
		return 0, 0, nil
	}
	m := d.Modes[d.curIndex]
	return m.Width, m.Height, nil
}

// SetSize は解像度モードを切り替える
func (d *SimDevice) SetSize(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSetSize {
		return &HRESULTError{Op: "put_eSize", Code: -1}
	}
	if index < 0 || index >= len(d.Modes) {
		return fmt.Errorf("解像度インデックスが範囲外です: %d", index)
	}
	d.curIndex = index
	return nil
}

// StartPullModeWithCallback はプルモード取得を開始する
func (d *SimDevice) StartPullModeWithCallback(cb func(Event)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("クローズ済みのデバイスは開始できません")
	}
	if d.started {
		return fmt.Errorf("既に開始されています")
	}

	d.cb = cb
	d.started = true
	d.stopCh = make(chan struct{})

	// FrameInterval設定時はSDKスレッド相当のゴルーチンで自走配信する
	if d.FrameInterval > 0 {
		interval := d.FrameInterval
		stopCh := d.stopCh
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					d.TriggerFrame()
				}
			}
		}()
	}

	return nil
}

// TriggerFrame はフレーム準備完了イベントを1回配信する
// SDKコールバックと同様、呼び出し元のゴルーチン上でコールバックが走る
func (d *SimDevice) TriggerFrame() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.frameCount++
	cb := d.cb
	d.mu.Unlock()

	if cb != nil {
		cb(EventImage)
	}
}

// PullImage は完成したフレームをバッファへ取り込む
func (d *SimDevice) PullImage(buf []byte, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failPull {
		return &HRESULTError{Op: "PullImageV2", Code: -1}
	}
	if !d.started {
		return fmt.Errorf("取得が開始されていません")
	}

	// フレーム番号で埋めた決定的なピクセルデータ
	fill := byte(d.frameCount)
	for i := range buf {
		buf[i] = fill
	}
	return nil
}

// Stop は連続取得を停止する
// 戻った時点で以降のコールバック配信は発生しない
func (d *SimDevice) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// Close はハンドルを解放する
func (d *SimDevice) Close() error {
	_ = d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// ExpoAGain は現在のゲインを返す
func (d *SimDevice) ExpoAGain() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain, nil
}

// SetExpoAGain はゲインを設定する
func (d *SimDevice) SetExpoAGain(percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = percent
	return nil
}

// ExpTimeRange は露出時間範囲を返す
func (d *SimDevice) ExpTimeRange() (int, int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expLo, d.expHi, d.expDef, nil
}

// ExpoTime は現在の露出時間を返す
func (d *SimDevice) ExpoTime() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposureUs, nil
}

// SetExpoTime は露出時間を設定する
func (d *SimDevice) SetExpoTime(us int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exposureUs = us
	return nil
}

// AutoExpoEnable は自動露出の有効状態を返す
func (d *SimDevice) AutoExpoEnable() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoExposure, nil
}

// SetAutoExpoEnable は自動露出を有効・無効にする
func (d *SimDevice) SetAutoExpoEnable(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoExposure = enabled
	return nil
}

// Option はデバイスオプション値を返す
func (d *SimDevice) Option(opt Option) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if opt == OptionByteOrder {
		return d.byteOrder, nil
	}
	return 0, fmt.Errorf("サポートされていないオプション: 0x%x", uint32(opt))
}

// SimSDK はシミュレートデバイスを列挙するSDK実装
type SimSDK struct {
	Devices []*SimDevice

	mu        sync.Mutex
	openCount int
}

// NewSimSDK は新しいSimSDKを作成する
func NewSimSDK(devices ...*SimDevice) *SimSDK {
	return &SimSDK{Devices: devices}
}

// Enum は登録済みのシミュレートカメラ一覧を返す
func (s *SimSDK) Enum() ([]DeviceInfo, error) {
	infos := make([]DeviceInfo, 0, len(s.Devices))
	for i, d := range s.Devices {
		infos = append(infos, DeviceInfo{Index: i, DisplayName: d.DisplayName})
	}
	return infos, nil
}

// Open は列挙インデックスを指定してシミュレートカメラを開く
func (s *SimSDK) Open(index int) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.Devices) {
		return nil, fmt.Errorf("カメラインデックスが範囲外です: %d", index)
	}

	dev := s.Devices[index]
	dev.mu.Lock()
	if dev.failOpen {
		dev.mu.Unlock()
		return nil, fmt.Errorf("カメラのオープンに失敗しました: index=%d", index)
	}
	// プローブ用の再オープンを許可する
	dev.closed = false
	dev.mu.Unlock()

	s.openCount++
	return dev, nil
}

// OpenCount はこれまでのオープン回数を返す（テスト検証用）
func (s *SimSDK) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount
}

// SetFailOpen は指定インデックスのオープン失敗を注入する
func (s *SimSDK) SetFailOpen(index int, fail bool) {
	if index < 0 || index >= len(s.Devices) {
		return
	}
	d := s.Devices[index]
	d.mu.Lock()
	d.failOpen = fail
	d.mu.Unlock()
}
