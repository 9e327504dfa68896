package camera

import "errors"

// Status はカメラコントローラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中（クローズ済み含む）
	StatusActive   Status = "active"   // 連続取得中
	StatusError    Status = "error"    // 再設定の途中失敗など、要再起動の状態
)

// Mode は解像度プリセットを表す（大文字小文字は区別しない）
const (
	ModeHigh = "high" // 総画素数が最大のモード
	ModeMid  = "mid"  // 面積順で中央のモード（3モード以上の場合のみ有効）
	ModeLow  = "low"  // 総画素数が最小のモード
)

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Area は総画素数を返す
func (r Resolution) Area() int {
	return r.Width * r.Height
}

// StatusInfo はカメラの現在状態のスナップショットを表す
type StatusInfo struct {
	Width        int     `json:"width"`         // 現在の画像幅
	Height       int     `json:"height"`        // 現在の画像高さ
	Gain         int     `json:"gain"`          // アナログゲイン（%）
	ExposureUs   int     `json:"exposure_us"`   // 露出時間（µs）
	AutoExposure bool    `json:"auto_exposure"` // 自動露出の有効状態
	Fps          float64 `json:"fps"`           // 直近1秒間のフレームレート
	State        Status  `json:"state"`         // コントローラの動作状態
}

// CameraInfo は列挙されたカメラの名前とシリアルを表す
// シリアル中心の設計のため、SDK固有のIDはここに含めない
type CameraInfo struct {
	Index  int    `json:"index"`  // 列挙スロットのインデックス
	Name   string `json:"name"`   // SDKが報告する表示名
	Serial string `json:"serial"` // 正規化済みシリアル番号（読めなければ空）
}

var (
	// ErrNotConnected はカメラが開かれていない場合のエラー
	ErrNotConnected = errors.New("カメラが接続されていません")

	// ErrNoFrame は接続済みだがフレームが未取得の場合のエラー
	// ErrNotConnectedとは区別して扱うこと
	ErrNoFrame = errors.New("フレームがまだ取得されていません")

	// ErrInvalidMode は認識できない解像度モード、またはこのデバイスで
	// 利用できないモードが要求された場合のエラー
	ErrInvalidMode = errors.New("無効な解像度モードです")
)
