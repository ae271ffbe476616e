package ffmpeg

import (
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erparts/go-avplay"
)

// generateClip writes a one second 64x48 clip with a sine audio track.
func generateClip(t *testing.T) string {
	t.Helper()
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg binary not available, cannot generate test clip")
	}

	path := filepath.Join(t.TempDir(), "clip.mkv")
	cmd := exec.Command(ffmpegPath,
		"-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x48:rate=25",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1:sample_rate=44100",
		"-c:v", "mpeg4", "-g", "10", "-pix_fmt", "yuv420p",
		"-c:a", "mp2",
		"-y", path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg failed to create test clip: %v\n%s", err, out)
	}
	return path
}

func openClip(t *testing.T) (*Source, int, int) {
	t.Helper()
	src, err := OpenSource(generateClip(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	videoIndex, audioIndex := -1, -1
	for _, stream := range src.Streams() {
		switch stream.Type {
		case avplay.MediaTypeVideo:
			videoIndex = stream.Index
		case avplay.MediaTypeAudio:
			audioIndex = stream.Index
		}
	}
	require.GreaterOrEqual(t, videoIndex, 0)
	require.GreaterOrEqual(t, audioIndex, 0)
	return src, videoIndex, audioIndex
}

// decodeFrame reads packets until dec produces a frame. Other streams'
// packets are released.
func decodeFrame(t *testing.T, src *Source, dec avplay.VideoDecoder, videoIndex int) avplay.DecodedFrame {
	t.Helper()
	for i := 0; i < 200; i++ {
		packet, err := src.ReadPacket()
		require.NoError(t, err)
		if packet.StreamIndex() != videoIndex {
			packet.Release()
			continue
		}
		err = dec.SendPacket(packet)
		packet.Release()
		if err != nil && !errors.Is(err, avplay.ErrAgain) {
			require.NoError(t, err)
		}
		frame, err := dec.ReceiveFrame()
		if errors.Is(err, avplay.ErrAgain) {
			continue
		}
		require.NoError(t, err)
		return frame
	}
	t.Fatal("no frame decoded")
	return nil
}

func TestSourceOpensClip(t *testing.T) {
	src, videoIndex, audioIndex := openClip(t)

	assert.Contains(t, src.FormatName(), "matroska")
	assert.InDelta(t, time.Second.Seconds(), src.Duration().Seconds(), 0.2)
	assert.NotNil(t, src.Stream(videoIndex))
	assert.NotNil(t, src.Stream(audioIndex))
	assert.Nil(t, src.Stream(99))
	assert.Nil(t, src.Stream(-1))

	// no read pause binding, both are accepted as no-ops
	assert.NoError(t, src.PauseRead())
	assert.NoError(t, src.ResumeRead())
}

func TestSourceReadsToEOF(t *testing.T) {
	src, _, _ := openClip(t)

	var packets int
	for {
		packet, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		packets++
		packet.Release()
		packet.Release()
	}
	assert.Greater(t, packets, 25)
}

func TestVideoDecoderFlushAndSeek(t *testing.T) {
	src, videoIndex, _ := openClip(t)
	dec, err := src.OpenVideoDecoder(videoIndex)
	require.NoError(t, err)
	defer dec.Close()

	params := dec.Params()
	assert.Equal(t, 64, params.Width)
	assert.Equal(t, 48, params.Height)
	assert.Equal(t, "yuv420p", params.PixelFormat)
	assert.InDelta(t, 0.04, params.FrameInterval, 1e-9)

	frame := decodeFrame(t, src, dec, videoIndex)
	assert.Equal(t, 64, frame.Width())
	assert.Equal(t, 48, frame.Height())
	assert.Equal(t, "yuv420p", frame.PixelFormat())
	_, ok := frame.PTS()
	assert.True(t, ok)
	frame.Release()

	// decoding continues from a keyframe after a flush
	require.NoError(t, src.SeekKeyframe(videoIndex, 0))
	dec.FlushBuffers()
	frame = decodeFrame(t, src, dec, videoIndex)
	pts, ok := frame.PTS()
	assert.True(t, ok)
	assert.Less(t, pts, int64(100))
	frame.Release()
}

func TestFilterGraphConvertsToRGBA(t *testing.T) {
	src, videoIndex, _ := openClip(t)
	dec, err := src.OpenVideoDecoder(videoIndex)
	require.NoError(t, err)
	defer dec.Close()

	for _, tc := range []struct {
		name          string
		description   string
		width, height int
	}{
		{"direct", "", 64, 48},
		{"scaled", "scale=32:24", 32, 24},
	} {
		t.Run(tc.name, func(t *testing.T) {
			graph, err := NewFilterGraph(dec.Params(), tc.description, avplay.DefaultOutputPixelFormat)
			require.NoError(t, err)
			defer graph.Close()

			frame := decodeFrame(t, src, dec, videoIndex)
			defer frame.Release()
			require.NoError(t, graph.Push(frame))
			picture, err := graph.Pull()
			require.NoError(t, err)
			defer picture.Release()

			data, err := picture.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tc.width, picture.Width())
			assert.Equal(t, tc.height, picture.Height())
			assert.Len(t, data, 4*tc.width*tc.height)
		})
	}
}

func TestFilterGraphRejectsUnknownFilter(t *testing.T) {
	src, videoIndex, _ := openClip(t)
	dec, err := src.OpenVideoDecoder(videoIndex)
	require.NoError(t, err)
	defer dec.Close()

	_, err = NewFilterGraph(dec.Params(), "no_such_filter", avplay.DefaultOutputPixelFormat)
	assert.Error(t, err)
	_, err = NewFilterGraph(avplay.VideoParams{}, "", avplay.DefaultOutputPixelFormat)
	assert.Error(t, err)
}
