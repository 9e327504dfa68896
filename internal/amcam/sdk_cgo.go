//go:build amcam

package amcam

/*
#cgo LDFLAGS: -lamcam
#include <stdlib.h>
#include <string.h>
#include <amcam.h>

extern void goAmcamEventCallback(unsigned nEvent, void* pCallbackCtx);

// コールバック関数ポインタのキャストはC側で行う（cgoの関数ポインタ制約のため）
static HRESULT start_pull_mode(HAmcam h)
{
	return Amcam_StartPullModeWithCallback(h, (PAMCAM_EVENT_CALLBACK)goAmcamEventCallback, (void*)h);
}

static const char* device_displayname(const AmcamDeviceV2* d)
{
	return d->displayname;
}

static const char* device_id(const AmcamDeviceV2* d)
{
	return d->id;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// cgoSDK はlibamcamへのcgoバインディング
type cgoSDK struct{}

// Default は環境で利用可能なSDK実装を返す
func Default() SDK {
	return &cgoSDK{}
}

// Enum は接続中のカメラ一覧を取得する
func (s *cgoSDK) Enum() ([]DeviceInfo, error) {
	var arr [C.AMCAM_MAX]C.AmcamDeviceV2
	n := int(C.Amcam_EnumV2(&arr[0]))

	infos := make([]DeviceInfo, 0, n)
	for i := 0; i < n; i++ {
		infos = append(infos, DeviceInfo{
			Index:       i,
			DisplayName: C.GoString(C.device_displayname(&arr[i])),
		})
	}
	return infos, nil
}

// Open は列挙インデックスを指定してカメラを開く
func (s *cgoSDK) Open(index int) (Device, error) {
	var arr [C.AMCAM_MAX]C.AmcamDeviceV2
	n := int(C.Amcam_EnumV2(&arr[0]))
	if index < 0 || index >= n {
		return nil, fmt.Errorf("カメラインデックスが範囲外です: %d (検出数: %d)", index, n)
	}

	h := C.Amcam_Open(C.device_id(&arr[index]))
	if h == nil {
		return nil, fmt.Errorf("カメラのオープンに失敗しました: index=%d", index)
	}
	return &cgoDevice{h: h}, nil
}

// cgoDevice は開かれた実デバイスのハンドルを保持する
type cgoDevice struct {
	h C.HAmcam
}

// コールバック登録表
// SDKスレッドからのイベントをハンドル経由でGo側コールバックへ引き渡す
var (
	callbackMu sync.RWMutex
	callbacks  = map[C.HAmcam]func(Event){}
)

//export goAmcamEventCallback
func goAmcamEventCallback(nEvent C.uint, pCallbackCtx unsafe.Pointer) {
	h := C.HAmcam(pCallbackCtx)

	callbackMu.RLock()
	cb := callbacks[h]
	callbackMu.RUnlock()

	if cb != nil {
		cb(Event(nEvent))
	}
}

// hr はHRESULT戻り値をエラーに変換する
func hr(op string, code C.HRESULT) error {
	if int32(code) < 0 {
		return &HRESULTError{Op: op, Code: int32(code)}
	}
	return nil
}

// SerialNumber はデバイス固有のシリアル番号を取得する
func (d *cgoDevice) SerialNumber() (string, error) {
	var sn [32]C.char
	if err := hr("get_SerialNumber", C.Amcam_get_SerialNumber(d.h, &sn[0])); err != nil {
		return "", err
	}
	return C.GoString(&sn[0]), nil
}

// ResolutionNumber はサポートされる解像度モード数を取得する
func (d *cgoDevice) ResolutionNumber() (int, error) {
	n := C.Amcam_get_ResolutionNumber(d.h)
	if int32(n) < 0 {
		return 0, &HRESULTError{Op: "get_ResolutionNumber", Code: int32(n)}
	}
	return int(n), nil
}

// Resolution は指定インデックスの解像度を取得する
func (d *cgoDevice) Resolution(index int) (int, int, error) {
	var w, h C.int
	if err := hr("get_Resolution", C.Amcam_get_Resolution(d.h, C.uint(index), &w, &h)); err != nil {
		return 0, 0, err
	}
	return int(w), int(h), nil
}

// Size は現在の解像度を取得する
func (d *cgoDevice) Size() (int, int, error) {
	var w, h C.int
	if err := hr("get_Size", C.Amcam_get_Size(d.h, &w, &h)); err != nil {
		return 0, 0, err
	}
	return int(w), int(h), nil
}

// SetSize は解像度モードを切り替える
func (d *cgoDevice) SetSize(index int) error {
	return hr("put_eSize", C.Amcam_put_eSize(d.h, C.uint(index)))
}

// StartPullModeWithCallback はプルモード取得を開始する
func (d *cgoDevice) StartPullModeWithCallback(cb func(Event)) error {
	callbackMu.Lock()
	callbacks[d.h] = cb
	callbackMu.Unlock()

	if err := hr("StartPullModeWithCallback", C.start_pull_mode(d.h)); err != nil {
		callbackMu.Lock()
		delete(callbacks, d.h)
		callbackMu.Unlock()
		return err
	}
	return nil
}

// PullImage は完成したフレームをバッファへ取り込む
func (d *cgoDevice) PullImage(buf []byte, bits int) error {
	if len(buf) == 0 {
		return fmt.Errorf("フレームバッファが空です")
	}
	return hr("PullImageV2", C.Amcam_PullImageV2(d.h, unsafe.Pointer(&buf[0]), C.int(bits), nil))
}

// Stop は連続取得を停止する
func (d *cgoDevice) Stop() error {
	return hr("Stop", C.Amcam_Stop(d.h))
}

// Close はハンドルを解放する
func (d *cgoDevice) Close() error {
	callbackMu.Lock()
	delete(callbacks, d.h)
	callbackMu.Unlock()

	C.Amcam_Close(d.h)
	return nil
}

// ExpoAGain は現在のアナログゲインを取得する
func (d *cgoDevice) ExpoAGain() (int, error) {
	var gain C.ushort
	if err := hr("get_ExpoAGain", C.Amcam_get_ExpoAGain(d.h, &gain)); err != nil {
		return 0, err
	}
	return int(gain), nil
}

// SetExpoAGain はアナログゲインを設定する
func (d *cgoDevice) SetExpoAGain(percent int) error {
	return hr("put_ExpoAGain", C.Amcam_put_ExpoAGain(d.h, C.ushort(percent)))
}

// ExpTimeRange はデバイスが許容する露出時間範囲を取得する
func (d *cgoDevice) ExpTimeRange() (int, int, int, error) {
	var lo, hi, def C.uint
	if err := hr("get_ExpTimeRange", C.Amcam_get_ExpTimeRange(d.h, &lo, &hi, &def)); err != nil {
		return 0, 0, 0, err
	}
	return int(lo), int(hi), int(def), nil
}

// ExpoTime は現在の露出時間を取得する
func (d *cgoDevice) ExpoTime() (int, error) {
	var us C.uint
	if err := hr("get_ExpoTime", C.Amcam_get_ExpoTime(d.h, &us)); err != nil {
		return 0, err
	}
	return int(us), nil
}

// SetExpoTime は露出時間を設定する
func (d *cgoDevice) SetExpoTime(us int) error {
	return hr("put_ExpoTime", C.Amcam_put_ExpoTime(d.h, C.uint(us)))
}

// AutoExpoEnable は自動露出の有効状態を取得する
func (d *cgoDevice) AutoExpoEnable() (bool, error) {
	var enabled C.int
	if err := hr("get_AutoExpoEnable", C.Amcam_get_AutoExpoEnable(d.h, &enabled)); err != nil {
		return false, err
	}
	return enabled != 0, nil
}

// SetAutoExpoEnable は自動露出を有効・無効にする
func (d *cgoDevice) SetAutoExpoEnable(enabled bool) error {
	var v C.int
	if enabled {
		v = 1
	}
	return hr("put_AutoExpoEnable", C.Amcam_put_AutoExpoEnable(d.h, v))
}

// Option はデバイスオプション値を取得する
func (d *cgoDevice) Option(opt Option) (int, error) {
	var val C.int
	if err := hr("get_Option", C.Amcam_get_Option(d.h, C.uint(opt), &val)); err != nil {
		return 0, err
	}
	return int(val), nil
}
