// Package snapshot は、観察記録用の静止画保存を管理します。
//
// このパッケージは、カメラの最新フレームを定期的にPNGとして
// ディスクへ保存し、保存済み静止画からタイムラプス動画を生成します。
//
// 責務:
//   - 一定間隔での静止画キャプチャと保存
//   - 保持期間を超えた古い静止画の削除
//   - 保存済み静止画の一覧と統計の提供
//   - FFmpegによるタイムラプス動画の生成
//
// 仕様:
//   - 保存形式はPNG（ファイル名にタイムスタンプを含む）
//   - キャプチャループはフレーム供給元をブロックしない
//   - 動画生成にはffmpegコマンドが必要
package snapshot
