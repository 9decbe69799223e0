package camera

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeJPEG(payload ...byte) []byte {
	out := append([]byte{0xFF, 0xD8}, payload...)
	return append(out, 0xFF, 0xD9)
}

func TestSplitJPEGStream(t *testing.T) {
	a := fakeJPEG(1, 2, 3)
	b := fakeJPEG(4, 5)
	c := fakeJPEG(6)

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // 先頭のゴミ
	stream.Write(a)
	stream.Write(b)
	stream.Write(c)
	stream.Write([]byte{0xFF, 0xD8, 0x07}) // 途中で切れたフレーム

	var frames [][]byte
	// 1バイトずつ読ませてもマーカーをまたいで分割できること
	err := splitJPEGStream(iotest.OneByteReader(&stream), func(f []byte) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	require.Len(t, frames, 3)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
	assert.Equal(t, c, frames[2])
}

func TestSplitJPEGStreamPropagatesReadError(t *testing.T) {
	r := io.MultiReader(bytes.NewReader(fakeJPEG(1)), iotest.ErrReader(io.ErrUnexpectedEOF))

	var count int
	err := splitJPEGStream(r, func([]byte) { count++ })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, count)
}

func TestFFmpegInputArgs(t *testing.T) {
	in := ffmpegInput{
		format:   "v4l2",
		source:   "/dev/video0",
		settings: Settings{Width: 640, Height: 480, FPS: 10},
	}
	args := in.args()

	assert.Contains(t, args, "v4l2")
	assert.Contains(t, args, "640x480")
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "image2pipe")
	assert.NotContains(t, args, "-vf")
	assert.Equal(t, "-", args[len(args)-1])

	in.format = "x11grab"
	in.filter = "format=yuv420p"
	assert.Contains(t, in.args(), "format=yuv420p")
}
