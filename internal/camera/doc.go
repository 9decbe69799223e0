// Package camera 監視カメラの排他的な取得とフレーム取得を担う
//
// # 責務
// - カメラの排他的な取得と解放 (プロセス内で同時に1つまで)
// - 最新フレームのJPEGスナップショット
// - V4L2デバイスの検出
//
// # バックエンド
//   - ffmpeg: V4L2デバイスをffmpegのMJPEG出力で読み取り、最新フレームを保持する
//   - x11: 監視映像を表示している画面をffmpegのx11grabで取り込む
//   - gocv: OpenCVのVideoCaptureを使う (ビルドタグ gocv が必要)
//   - mock: テストとデモ用の合成フレーム
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: ffmpeg/x11バックエンドで使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
