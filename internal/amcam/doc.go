// Package amcam AmScope/Toupcam系ベンダーSDKとの境界を担う
//
// # 責務
// - ベンダーSDKが提供するカメラ操作面のGoインターフェース化
// - デバイスの列挙とインデックス指定オープン
// - プルモード取得コールバックのイベント定数定義
// - テスト・開発用のシミュレートデバイス提供
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 顕微鏡カメラの実デバイスを開いて制御したい
// - 接続中のカメラを列挙してシリアル番号を読みたい
// - 実機なしでコントローラやサーバーを動かしたい（Sim系を使用）
//
// # 仕様
// - 実SDKバインディングはビルドタグ `amcam` 配下のcgo実装
//   （libamcamが無い環境でもデフォルトビルドが通るようにするため）
// - タグなしビルドではDefault()がErrSDKUnavailableを返すスタブになる
// - SimSDK / SimDevice は実装と同じパッケージに置く（テストから直接利用）
//
// # 前提要件（実機利用時）
//   - libamcam: ベンダー配布のSDKライブラリ
//     ヘッダ amcam.h と libamcam.so をシステムパスに配置する
//   - USBアクセス権限: udevルールまたはvideoグループへの参加
package amcam
