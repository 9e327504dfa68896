//go:build !amcam

package amcam

// stubSDK はSDKバインディングなしビルド用のスタブ実装
type stubSDK struct{}

// Default は環境で利用可能なSDK実装を返す
// ビルドタグ amcam なしではスタブが返り、列挙結果は常に空になる
func Default() SDK {
	return &stubSDK{}
}

// Enum は空の一覧を返す（実機列挙にはビルドタグ amcam が必要）
func (s *stubSDK) Enum() ([]DeviceInfo, error) {
	return nil, nil
}

// Open は常にErrSDKUnavailableを返す
func (s *stubSDK) Open(_ int) (Device, error) {
	return nil, ErrSDKUnavailable
}
