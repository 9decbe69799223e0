// Package server は監視コンソールのHTTPサーバーを管理する
//
// 責務:
//   - セッションの開始と停止、共有状態の参照を行うREST API
//   - 最新フレームのMJPEGプレビュー配信
//   - カメラ状態の変化をWebSocketで配信
//   - 動画ファイルの一括解析の受け付け
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - SIGINT/SIGTERMでグレースフルシャットダウン
//   - 停止時はセッションを止め、送信中の推論を待ってからHTTPを閉じる
package server
