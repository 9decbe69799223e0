// Package assessment は推論結果の語彙を定義する
//
// # 責務
// - リスクレベル・岩石サイズ・軌道の全順序（優先度）の定義
// - 推論サービスが返す文字列の正規化
// - フレーム単位の結果と、セッション単位の通知状態の型
//
// # 仕様
// - 各カテゴリは 0 を「未設定/不明」とする順位を持つ
// - 文字列の解釈は大文字小文字を区別しない
// - "mid" は Medium の別名として扱う
// - 不明な文字列は未設定（順位0）になる
package assessment
