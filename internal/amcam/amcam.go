package amcam

import (
	"errors"
	"fmt"
)

// Event はSDKコールバックが通知するイベント種別を表す
type Event uint32

const (
	// EventImage は新しいフレームの取得準備完了を表す（AMCAM_EVENT_IMAGE）
	EventImage Event = 0x0004
	// EventExposure は自動露出による露出時間変更を表す（AMCAM_EVENT_EXPOSURE）
	EventExposure Event = 0x0001
	// EventError はデバイス側の致命的エラーを表す（AMCAM_EVENT_ERROR）
	EventError Event = 0x0080
	// EventDisconnected はデバイスの切断を表す（AMCAM_EVENT_DISCONNECTED）
	EventDisconnected Event = 0x0081
)

// Option はget_Option/put_Optionのオプション種別を表す
type Option uint32

const (
	// OptionByteOrder はピクセルのバイト順を表す（0 = RGB, 1 = BGR）
	OptionByteOrder Option = 0x12
)

// ErrSDKUnavailable はSDKバインディングなしでビルドされた場合のエラー
var ErrSDKUnavailable = errors.New("amcam SDKが利用できません（ビルドタグ amcam なしでビルドされています）")

// HRESULTError はSDK呼び出しが返したHRESULT失敗コードを表す
type HRESULTError struct {
	Op   string // 失敗したSDK操作名
	Code int32  // HRESULT値
}

// Error はエラーメッセージを返す
func (e *HRESULTError) Error() string {
	return fmt.Sprintf("amcam %s が失敗しました: HRESULT=0x%08x", e.Op, uint32(e.Code))
}

// DeviceInfo は列挙されたカメラの情報を表す
type DeviceInfo struct {
	Index       int    // 列挙スロットのインデックス
	DisplayName string // SDKが報告する表示名
}

// SDK はカメラの列挙とオープンを担うインターフェース
type SDK interface {
	// Enum は接続中のカメラ一覧を取得する（Amcam_EnumV2相当）
	Enum() ([]DeviceInfo, error)

	// Open は列挙インデックスを指定してカメラを開く
	Open(index int) (Device, error)
}

// Device は開かれた1台のカメラハンドルを表すインターフェース
//
// コントローラが消費するSDK操作面のみを定義する。
// 全メソッドはエラーを明示的に返す（SDKのHRESULTを握り潰さない）。
type Device interface {
	// SerialNumber はデバイス固有の不変なシリアル番号を取得する
	SerialNumber() (string, error)

	// ResolutionNumber はサポートされる解像度モード数を取得する
	ResolutionNumber() (int, error)

	// Resolution は指定インデックスの解像度（幅・高さ）を取得する
	Resolution(index int) (width, height int, err error)

	// Size は現在の解像度（幅・高さ）を取得する
	Size() (width, height int, err error)

	// SetSize は解像度モードを切り替える（put_eSize相当）
	SetSize(index int) error

	// StartPullModeWithCallback はプルモード取得を開始する
	// コールバックはSDKが所有するバックグラウンドスレッドから呼ばれる
	StartPullModeWithCallback(cb func(Event)) error

	// PullImage は完成したフレームを呼び出し側のバッファへ取り込む
	// bitsはピクセル深度（RGB888なら24）
	PullImage(buf []byte, bits int) error

	// Stop は連続取得を停止する
	Stop() error

	// Close はハンドルを解放する
	Close() error

	// ExpoAGain は現在のアナログゲイン（%）を取得する
	ExpoAGain() (int, error)

	// SetExpoAGain はアナログゲイン（%）を設定する
	SetExpoAGain(percent int) error

	// ExpTimeRange はデバイスが許容する露出時間範囲（µs）を取得する
	ExpTimeRange() (lo, hi, def int, err error)

	// ExpoTime は現在の露出時間（µs）を取得する
	ExpoTime() (int, error)

	// SetExpoTime は露出時間（µs）を設定する
	SetExpoTime(us int) error

	// AutoExpoEnable は自動露出の有効状態を取得する
	AutoExpoEnable() (bool, error)

	// SetAutoExpoEnable は自動露出を有効・無効にする
	SetAutoExpoEnable(enabled bool) error

	// Option はデバイスオプション値を取得する（get_Option相当）
	Option(opt Option) (int, error)
}
