package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// ffmpegInput はffmpegの入力指定
type ffmpegInput struct {
	format   string // v4l2 または x11grab
	source   string // /dev/video0 や :0.0
	settings Settings
	filter   string
}

func (in ffmpegInput) args() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", in.format,
		"-video_size", fmt.Sprintf("%dx%d", in.settings.Width, in.settings.Height),
		"-r", strconv.Itoa(in.settings.FPS),
		"-i", in.source,
	}
	if in.filter != "" {
		args = append(args, "-vf", in.filter)
	}
	return append(args,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// FFmpegCapturer はffmpegのMJPEG出力をパイプで読み取る
type FFmpegCapturer struct {
	input  ffmpegInput
	logger *logrus.Entry
}

func newFFmpegCapturer(input ffmpegInput, logger *logrus.Entry) *FFmpegCapturer {
	return &FFmpegCapturer{input: input, logger: logger}
}

// Stream はffmpegを起動し、JPEGフレームごとに onFrame を呼ぶ
// ctx がキャンセルされるかffmpegが終了するまでブロックする
func (c *FFmpegCapturer) Stream(ctx context.Context, onFrame func([]byte)) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.input.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	lastLine := make(chan string, 1)
	go func() {
		var last string
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			last = scanner.Text()
			c.logger.WithField("source", c.input.source).Debug(last)
		}
		lastLine <- last
	}()

	readErr := splitJPEGStream(stdout, onFrame)
	waitErr := cmd.Wait()
	tail := <-lastLine

	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("フレーム読み取りエラー: %w", readErr)
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpegが異常終了: %w (stderr: %s)", waitErr, tail)
	}
	return nil
}

// splitJPEGStream は連結されたJPEGのストリームを1枚ずつに分割する
func splitJPEGStream(r io.Reader, onFrame func([]byte)) error {
	var pending bytes.Buffer
	chunk := make([]byte, 256*1024)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			extractFrames(&pending, onFrame)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// extractFrames は完全なフレームを取り出し、残りを pending に残す
func extractFrames(pending *bytes.Buffer, onFrame func([]byte)) {
	data := pending.Bytes()
	consumed := 0

	for {
		start := bytes.Index(data[consumed:], jpegStart)
		if start == -1 {
			// 開始マーカーの1バイト目だけが末尾にある場合に備えて1バイト残す
			if len(data) > consumed {
				consumed = len(data) - 1
			}
			break
		}
		start += consumed

		end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
		if end == -1 {
			consumed = start
			break
		}
		end += start + len(jpegStart) + len(jpegEnd)

		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		onFrame(frame)

		consumed = end
	}

	rest := append([]byte(nil), data[consumed:]...)
	pending.Reset()
	pending.Write(rest)
}
