// Package server は、カメラAPIのHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// フレームのエンコードと配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - カメラコントローラのライフサイクル管理（起動時オープン・終了時クローズ）
//   - REST API（状態取得・ゲイン・露出・自動露出・解像度）
//   - 静止画（PNG）とMJPEG・WebSocketストリーミングの配信
//   - シリアル番号によるヘルスチェック
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - コントローラはアトミックな共有参照で保持する
//     （グローバル変数への直接代入はしない）
//   - 複数クライアントの同時接続をサポート
package server
