package audio

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erparts/go-avplay"
	"github.com/erparts/go-avplay/ffmpeg"
)

func openAudioClip(t *testing.T) (*ffmpeg.Source, int) {
	t.Helper()
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg binary not available, cannot generate test clip")
	}
	path := filepath.Join(t.TempDir(), "tone.mka")
	cmd := exec.Command(ffmpegPath,
		"-v", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1:sample_rate=44100",
		"-c:a", "mp2",
		"-y", path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg failed to create test clip: %v\n%s", err, out)
	}

	src, err := ffmpeg.OpenSource(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	for _, stream := range src.Streams() {
		if stream.Type == avplay.MediaTypeAudio {
			return src, stream.Index
		}
	}
	t.Fatal("no audio stream")
	return nil, -1
}

// decodeSome decodes packets until samples come out.
func decodeSome(t *testing.T, src *ffmpeg.Source, dec *decoder) (float64, []byte) {
	t.Helper()
	for i := 0; i < 100; i++ {
		packet, err := src.ReadPacket()
		require.NoError(t, err)
		pkt := packet.(*ffmpeg.Packet)
		pts, samples, err := dec.decode(pkt.AVPacket())
		packet.Release()
		require.NoError(t, err)
		if len(samples) > 0 {
			return pts, samples
		}
	}
	t.Fatal("no samples decoded")
	return 0, nil
}

func TestDecoderResamplesToOutputRate(t *testing.T) {
	src, index := openAudioClip(t)
	dec, err := newDecoder(src.Stream(index), 48000)
	require.NoError(t, err)
	defer dec.close()

	pts, samples := decodeSome(t, src, dec)
	assert.GreaterOrEqual(t, pts, 0.0)
	assert.NotEmpty(t, samples)
	assert.Zero(t, len(samples)%bytesPerSample)
}

func TestDecoderFlushKeepsDecoding(t *testing.T) {
	src, index := openAudioClip(t)
	dec, err := newDecoder(src.Stream(index), 48000)
	require.NoError(t, err)
	defer dec.close()

	decodeSome(t, src, dec)
	require.NoError(t, src.SeekKeyframe(index, 0))
	require.NoError(t, dec.flush())
	pts, samples := decodeSome(t, src, dec)
	assert.NotEmpty(t, samples)
	assert.Less(t, pts, 0.5)
}
