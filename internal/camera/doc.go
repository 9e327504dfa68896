// Package camera 顕微鏡カメラのフレーム取得と状態遷移を担う
//
// # 責務
// - 開かれたカメラハンドルの排他所有とライフサイクル管理
// - SDKコールバックからのフレーム取り込みとスナップショット公開
// - ローリングFPS統計の維持
// - ゲイン・露出・自動露出・解像度の設定操作
// - シリアル番号によるデバイスの検出・選択
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 1台のカメラから「最新フレーム」を安全に読み出したい
// - ストリーミングを止めずにカメラ設定を変更したい
// - シリアル番号で対象カメラの存在確認・オープンを行いたい
//
// # 仕様
// - 生産者はSDK所有のスレッド1本、読み手はHTTPハンドラN本
// - スナップショットは公開後に変更されない完全なフレームのコピー
//   （読み手が途中状態のフレームを観測することはない）
// - 公開・読み出しは単一のミューテックスで保護し、デバイスからの
//   取り込みと画像エンコードはロック外で行う
// - 解像度変更は停止→待機→再設定→再開の順序列で、制御用の
//   第二のミューテックスで直列化する
// - 1フレームの取り込み失敗は黙って破棄する（リトライなし）
package camera
