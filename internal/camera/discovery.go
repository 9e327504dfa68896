package camera

import (
	"fmt"
	"log"
	"strings"
	"unicode"

	"kenbikyo/internal/amcam"
)

// CanonicalSerial はシリアル番号を比較用に正規化する
// SDKやバックエンドによって大文字小文字や余計な文字が混ざるため、
// 大文字化して英数字以外を落とした形で比較する
func CanonicalSerial(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// readSerialByIndexOnce はインデックス指定でオープンし、シリアルを読んで
// 必ずクローズする。存在確認用で、ストリームを妨げない短時間のプローブ
func readSerialByIndexOnce(sdk amcam.SDK, index int) string {
	dev, err := sdk.Open(index)
	if err != nil {
		return ""
	}
	defer func() {
		_ = dev.Close()
	}()

	sn, err := dev.SerialNumber()
	if err != nil {
		return ""
	}
	return CanonicalSerial(sn)
}

// SerialPresent は指定シリアルのデバイスが現在接続されているかを返す
//
// 確認順序:
//  1. コントローラが既にハンドルを開いていれば、そのシリアルを比較する
//     （再オープンせず、ストリームを乱さない）
//  2. それ以外は列挙してスロットごとにオープン→読み取り→クローズで照合する
func SerialPresent(sdk amcam.SDK, live *Controller, serial string) bool {
	wanted := CanonicalSerial(serial)
	if wanted == "" {
		return false
	}

	if live != nil {
		if sn, err := live.SerialNumber(); err == nil {
			if CanonicalSerial(sn) == wanted {
				return true
			}
		} else {
			log.Printf("開いているハンドルからシリアルを読めませんでした。プローブへ切り替えます: %v", err)
		}
	}

	infos, err := sdk.Enum()
	if err != nil {
		log.Printf("カメラの列挙に失敗しました: %v", err)
		return false
	}
	for i := range infos {
		if readSerialByIndexOnce(sdk, i) == wanted {
			return true
		}
	}
	return false
}

// FindAndOpenBySerial は列挙された全カメラからシリアルの一致する1台を
// 探してオープンしたまま返す。一致しなかったハンドルは必ずクローズする
func FindAndOpenBySerial(sdk amcam.SDK, serial string) (amcam.Device, error) {
	wanted := CanonicalSerial(serial)
	if wanted == "" {
		return nil, fmt.Errorf("シリアル番号が指定されていません")
	}

	infos, err := sdk.Enum()
	if err != nil {
		return nil, fmt.Errorf("カメラの列挙に失敗: %w", err)
	}

	for i := range infos {
		dev, err := sdk.Open(i)
		if err != nil {
			continue
		}
		sn, err := dev.SerialNumber()
		if err != nil {
			_ = dev.Close()
			continue
		}
		if CanonicalSerial(sn) == wanted {
			return dev, nil
		}
		_ = dev.Close()
	}
	return nil, fmt.Errorf("%w: シリアル %s のカメラが見つかりません", ErrNotConnected, wanted)
}

// ListCameras は検出されたカメラの名前とシリアルの一覧を返す
// シリアル中心の設計のため、SDK固有のIDは公開しない
func ListCameras(sdk amcam.SDK) []CameraInfo {
	infos, err := sdk.Enum()
	if err != nil {
		log.Printf("カメラの列挙に失敗しました: %v", err)
		return nil
	}

	out := make([]CameraInfo, 0, len(infos))
	for i, info := range infos {
		out = append(out, CameraInfo{
			Index:  i,
			Name:   info.DisplayName,
			Serial: readSerialByIndexOnce(sdk, i),
		})
	}
	return out
}
