package camera

import (
	"errors"
	"testing"

	"kenbikyo/internal/amcam"
)

// TestCanonicalSerial はシリアル番号の正規化をテストする
func TestCanonicalSerial(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "小文字は大文字化", input: "abc123", want: "ABC123"},
		{name: "ハイフンは除去", input: "TP-1234-XY", want: "TP1234XY"},
		{name: "空白は除去", input: " TP 1234 ", want: "TP1234"},
		{name: "既に正規形", input: "TP1234XY", want: "TP1234XY"},
		{name: "空文字列", input: "", want: ""},
		{name: "記号のみ", input: "---", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanonicalSerial(tc.input); got != tc.want {
				t.Errorf("正規化結果が一致しません: got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestSerialPresentProbe は列挙プローブによる存在確認をテストする
func TestSerialPresentProbe(t *testing.T) {
	sdk := amcam.NewSimSDK(
		amcam.NewSimDevice("TP1111"),
		amcam.NewSimDevice("TP2222"),
	)

	if !SerialPresent(sdk, nil, "TP2222") {
		t.Error("接続中のシリアルが検出されませんでした")
	}
	if !SerialPresent(sdk, nil, "tp-1111") {
		t.Error("正規化前のシリアル表記で検出できるべきです")
	}
	if SerialPresent(sdk, nil, "TP9999") {
		t.Error("未接続のシリアルが検出されています")
	}
	if SerialPresent(sdk, nil, "") {
		t.Error("空のシリアルは常に不在扱いであるべきです")
	}
}

// TestSerialPresentFastPath は開いているハンドルがある場合に再オープン
// せずに確認できることをテストする
func TestSerialPresentFastPath(t *testing.T) {
	dev := amcam.NewSimDevice("TP1111")
	sdk := amcam.NewSimSDK(dev)

	c, err := NewController(dev)
	if err != nil {
		t.Fatalf("コントローラの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	before := sdk.OpenCount()
	if !SerialPresent(sdk, c, "TP1111") {
		t.Error("開いているハンドルのシリアルが一致しません")
	}
	if sdk.OpenCount() != before {
		t.Error("一致時はプローブの再オープンが不要のはずです")
	}

	// 不一致ならプローブへフォールバックする
	if SerialPresent(sdk, c, "TP9999") {
		t.Error("未接続のシリアルが検出されています")
	}
}

// TestFindAndOpenBySerial はシリアル指定オープンをテストする
func TestFindAndOpenBySerial(t *testing.T) {
	first := amcam.NewSimDevice("TP1111")
	second := amcam.NewSimDevice("TP2222")
	sdk := amcam.NewSimSDK(first, second)

	dev, err := FindAndOpenBySerial(sdk, "TP2222")
	if err != nil {
		t.Fatalf("シリアル指定オープンに失敗しました: %v", err)
	}

	sn, err := dev.SerialNumber()
	if err != nil {
		t.Fatalf("シリアル番号の取得に失敗しました: %v", err)
	}
	if CanonicalSerial(sn) != "TP2222" {
		t.Errorf("開いたデバイスのシリアルが一致しません: %s", sn)
	}

	// 一致しなかったハンドルはクローズされている
	if !first.IsClosed() {
		t.Error("不一致ハンドルがクローズされていません")
	}
	if second.IsClosed() {
		t.Error("一致ハンドルがクローズされています")
	}
}

// TestFindAndOpenBySerialNotFound は不在シリアルでの失敗をテストする
func TestFindAndOpenBySerialNotFound(t *testing.T) {
	sdk := amcam.NewSimSDK(amcam.NewSimDevice("TP1111"))

	if _, err := FindAndOpenBySerial(sdk, "TP9999"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ErrNotConnectedが期待されましたが: %v", err)
	}
	if _, err := FindAndOpenBySerial(sdk, ""); err == nil {
		t.Error("空のシリアルはエラーになるべきです")
	}
}

// TestListCameras はカメラ一覧の取得をテストする
func TestListCameras(t *testing.T) {
	sdk := amcam.NewSimSDK(
		amcam.NewSimDevice("TP1111"),
		amcam.NewSimDevice("TP2222"),
	)

	cams := ListCameras(sdk)
	if len(cams) != 2 {
		t.Fatalf("カメラ数が一致しません: got %d, want 2", len(cams))
	}
	if cams[0].Serial != "TP1111" || cams[1].Serial != "TP2222" {
		t.Errorf("シリアルが一致しません: %+v", cams)
	}
	for _, cam := range cams {
		if cam.Name == "" {
			t.Error("表示名が設定されていません")
		}
	}
}

// TestSerialReadFailureSkipsSlot はシリアルの読めないスロットが照合から
// 除外されることをテストする
func TestSerialReadFailureSkipsSlot(t *testing.T) {
	broken := amcam.NewSimDevice("TP1111")
	broken.SetFailSerial(true)
	sdk := amcam.NewSimSDK(broken, amcam.NewSimDevice("TP2222"))

	if SerialPresent(sdk, nil, "TP1111") {
		t.Error("シリアルの読めないスロットが一致扱いになっています")
	}
	if !SerialPresent(sdk, nil, "TP2222") {
		t.Error("正常なスロットが検出されませんでした")
	}

	cams := ListCameras(sdk)
	if cams[0].Serial != "" {
		t.Errorf("読めないシリアルは空になるべきです: %q", cams[0].Serial)
	}
}
