package avplay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerFollowsDecoder(t *testing.T) {
	source := endlessVideo()
	audio := newFakeAudio(0)
	p := NewPlayer("movie.mp4", ModeVideo, &fakeBackend{source: source}, audio, testConfig())

	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.State() == Playing }, eventually, tick)
	assert.Equal(t, 90*time.Second, p.Duration())

	p.Pause()
	require.Eventually(t, func() bool { return p.State() == Paused }, eventually, tick)
	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.State() == Playing }, eventually, tick)

	p.SetMuted(true)
	assert.Zero(t, audio.Volume())
	p.SetMuted(false)
	p.SetVolume(2)
	assert.Equal(t, 1.0, audio.Volume())

	p.Stop()
	assert.Equal(t, Stopped, p.State())
	assert.False(t, p.Ended())
	assert.Zero(t, p.Position())
}

func TestPlayerPositionWithoutAudio(t *testing.T) {
	source := newFakeSource([]int{0, 0, 0}, videoStream)
	p := NewPlayer("silent.mp4", ModeVideo, &fakeBackend{source: source}, newFakeAudio(0), testConfig())

	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.State() == Finished }, eventually, tick)
	assert.True(t, p.Ended())
	// pts of the last frame, packet id 3 in a 1/1000 time base
	assert.InDelta(t, 0.003, p.Position().Seconds(), 1e-6)
	require.NoError(t, p.Err())
	p.Stop()
}

func TestPlayerReportsSessionErrors(t *testing.T) {
	backend := &fakeBackend{source: newFakeSource(nil, audioStream)}
	p := NewPlayer("song.mp3", ModeVideo, backend, newFakeAudio(0), testConfig())

	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.Err() != nil }, eventually, tick)
	assert.ErrorIs(t, p.Err(), ErrNoStreamFound)
	assert.Equal(t, Stopped, p.State())
}

func TestPlayerDropsMalformedFrames(t *testing.T) {
	p := &Player{pixelAspect: 1}
	events := playerEvents{p}

	events.FrameReady(Frame{Pix: make([]byte, 3), Width: 2, Height: 2})
	assert.Nil(t, p.pending)

	events.FrameReady(Frame{Pix: make([]byte, 16), Width: 2, Height: 2, PTS: 1.25, SampleAspectRatio: Rational{Num: 4, Den: 3}})
	require.NotNil(t, p.pending)
	assert.Equal(t, 1.25, p.lastPTS)
	assert.InDelta(t, 4.0/3.0, p.pixelAspect, 1e-9)
}

func TestPlayerEndedResetsOnPlay(t *testing.T) {
	p := &Player{pixelAspect: 1}
	events := playerEvents{p}

	events.MediaEnded()
	events.StateChanged(Stopped)
	assert.True(t, p.Ended())
	assert.Equal(t, Stopped, p.State())

	events.StateChanged(Playing)
	assert.False(t, p.Ended())
}
