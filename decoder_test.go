package avplay

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 5 * time.Second
	tick       = time.Millisecond
)

func waitForState(t *testing.T, d *Decoder, state PlayState) {
	t.Helper()
	require.Eventually(t, func() bool { return d.State() == state }, eventually, tick, "waiting for %s", state)
}

// endlessVideo returns a looping source with interleaved audio and video.
func endlessVideo() *fakeSource {
	source := newFakeSource([]int{0, 1, 1, 0, 1, 2})
	source.loop = true
	return source
}

func TestStartValidation(t *testing.T) {
	d, _, _ := newTestDecoder(newFakeSource(nil), newFakeAudio(0))
	assert.ErrorIs(t, d.Start("", ModeVideo), ErrEmptySource)
	assert.ErrorIs(t, d.Start("movie.mp4", Mode(9)), ErrInvalidMode)
	assert.Equal(t, Stopped, d.State())
}

func TestNewDecoderPanicsWithoutCollaborators(t *testing.T) {
	assert.Panics(t, func() { NewDecoder(nil, newFakeAudio(0), nil, Config{}) })
	assert.Panics(t, func() { NewDecoder(&fakeBackend{}, nil, nil, Config{}) })
}

func TestVideoSessionPlaysToFinished(t *testing.T) {
	source := newFakeSource([]int{0, 1, 0, 1, 2, 0})
	// audio far ahead, frames are never held back
	d, _, listener := newTestDecoder(source, newFakeAudio(1e6))

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Finished)

	require.Eventually(t, func() bool { return source.closed.Load() }, eventually, tick)
	assert.Equal(t, 3, listener.frameCount())
	assert.Equal(t, []PlayState{Playing, Finished}, listener.stateHistory())
	assert.Equal(t, 1, listener.endedCount())
	assert.Zero(t, source.outstanding())

	d.Stop()
	assert.Equal(t, Stopped, d.State())
	assert.Equal(t, []PlayState{Playing, Finished, Stopped}, listener.stateHistory())
}

func TestStopSequencingVideoMode(t *testing.T) {
	source := endlessVideo()
	audio := newFakeAudio(1e6)
	d, _, listener := newTestDecoder(source, audio)

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)
	require.Eventually(t, func() bool { return listener.frameCount() > 10 }, eventually, tick)
	s := d.current.Load()
	require.NotNil(t, s)

	d.Stop()

	// both goroutines are done by the time Stop returns
	assert.True(t, s.readFinished.Load())
	assert.True(t, s.decodeFinished.Load())
	assert.Equal(t, Stopped, d.State())
	last, _ := listener.lastState()
	assert.Equal(t, Stopped, last)
	assert.Zero(t, listener.endedCount())
	assert.True(t, source.closed.Load())
	assert.True(t, source.decoder.closed.Load())

	audio.mutex.Lock()
	assert.Equal(t, 1, audio.stops)
	assert.Equal(t, 1, audio.closes)
	audio.mutex.Unlock()
}

func TestStopSequencingAudioMode(t *testing.T) {
	source := newFakeSource([]int{1, 0, 1, 2})
	source.loop = true
	d, _, listener := newTestDecoder(source, newFakeAudio(0))

	require.NoError(t, d.Start("song.mp3", ModeAudio))
	waitForState(t, d, Playing)
	s := d.current.Load()

	d.Stop()
	assert.True(t, s.readFinished.Load())
	assert.Equal(t, Stopped, d.State())
	assert.Equal(t, []PlayState{Playing, Stopped}, listener.stateHistory())
	assert.Zero(t, listener.endedCount())
	assert.Zero(t, listener.frameCount())
	assert.Zero(t, source.decoder.sentIDs())
}

func TestAudioModeNaturalEnd(t *testing.T) {
	source := newFakeSource([]int{1, 1, 1})
	audio := newFakeAudio(0)
	d, _, listener := newTestDecoder(source, audio)

	require.NoError(t, d.Start("song.mp3", ModeAudio))
	waitForState(t, d, Playing)
	require.Eventually(t, func() bool {
		audio.mutex.Lock()
		defer audio.mutex.Unlock()
		return audio.readFinished == 1
	}, eventually, tick)

	// still seekable while the audio drains
	d.Seek(time.Second)
	require.Eventually(t, func() bool { return len(source.seekCalls()) == 1 }, eventually, tick)

	assert.Zero(t, listener.endedCount())
	audio.finish()
	waitForState(t, d, Stopped)
	assert.Equal(t, []PlayState{Playing, Stopped}, listener.stateHistory())
	// reported before the final transition, and only once
	assert.Equal(t, 1, listener.endedCount())
	require.Eventually(t, func() bool { return source.closed.Load() }, eventually, tick)
}

func TestAudioFinishedEndsVideoSession(t *testing.T) {
	source := endlessVideo()
	audio := newFakeAudio(1e6)
	d, _, listener := newTestDecoder(source, audio)

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)

	audio.finish()
	waitForState(t, d, Finished)
	assert.Equal(t, []PlayState{Playing, Finished}, listener.stateHistory())
	assert.Equal(t, 1, listener.endedCount())
	d.Stop()
	assert.Equal(t, 1, listener.endedCount())
}

func TestTogglePause(t *testing.T) {
	source := endlessVideo()
	audio := newFakeAudio(1e6)
	d, _, listener := newTestDecoder(source, audio)

	// nothing to pause yet
	d.TogglePause()
	assert.Equal(t, Stopped, d.State())

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)

	d.TogglePause()
	assert.Equal(t, Paused, d.State())
	require.Eventually(t, func() bool {
		pauses, _ := source.pauseCounts()
		return pauses == 1
	}, eventually, tick)

	d.TogglePause()
	assert.Equal(t, Playing, d.State())
	require.Eventually(t, func() bool {
		_, resumes := source.pauseCounts()
		return resumes == 1
	}, eventually, tick)

	audio.mutex.Lock()
	assert.Equal(t, []bool{true, false}, audio.pauses)
	audio.mutex.Unlock()

	d.Stop()
	assert.Equal(t, []PlayState{Playing, Paused, Playing, Stopped}, listener.stateHistory())
}

func TestStopWhilePaused(t *testing.T) {
	d, _, listener := newTestDecoder(endlessVideo(), newFakeAudio(1e6))
	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)
	d.TogglePause()

	d.Stop()
	assert.Equal(t, Stopped, d.State())
	assert.Equal(t, []PlayState{Playing, Paused, Stopped}, listener.stateHistory())
}

func TestStartFailuresEndStopped(t *testing.T) {
	t.Run("open failure", func(t *testing.T) {
		d, backend, listener := newTestDecoder(nil, newFakeAudio(0))
		backend.openErr = io.ErrUnexpectedEOF

		require.NoError(t, d.Start("broken.mp4", ModeVideo))
		require.Eventually(t, func() bool { return len(listener.errors()) == 1 }, eventually, tick)
		assert.ErrorIs(t, listener.errors()[0], ErrOpenFailure)
		require.Eventually(t, func() bool {
			state, ok := listener.lastState()
			return ok && state == Stopped
		}, eventually, tick)
		d.Stop()
	})
	t.Run("no stream", func(t *testing.T) {
		source := newFakeSource(nil, audioStream)
		d, _, listener := newTestDecoder(source, newFakeAudio(0))

		require.NoError(t, d.Start("song.mp3", ModeVideo))
		require.Eventually(t, func() bool { return len(listener.errors()) == 1 }, eventually, tick)
		assert.ErrorIs(t, listener.errors()[0], ErrNoStreamFound)
		require.Eventually(t, func() bool { return source.closed.Load() }, eventually, tick)
		d.Stop()
		assert.Equal(t, Stopped, d.State())
		assert.NotContains(t, listener.stateHistory(), Playing)
	})
}

func TestRestartStopsPreviousSession(t *testing.T) {
	first := endlessVideo()
	audio := newFakeAudio(1e6)
	d, backend, listener := newTestDecoder(first, audio)

	require.NoError(t, d.Start("first.mp4", ModeVideo))
	waitForState(t, d, Playing)
	previous := d.current.Load()

	second := endlessVideo()
	backend.source = second
	require.NoError(t, d.Start("second.mp4", ModeVideo))
	assert.True(t, previous.readFinished.Load())
	assert.True(t, previous.decodeFinished.Load())
	assert.True(t, first.closed.Load())

	waitForState(t, d, Playing)
	assert.Equal(t, "second.mp4", d.current.Load().path)
	d.Stop()
	assert.Equal(t, []PlayState{Playing, Stopped, Playing, Stopped}, listener.stateHistory())
}

func TestSeekWhilePlaying(t *testing.T) {
	source := endlessVideo()
	d, _, _ := newTestDecoder(source, newFakeAudio(1e6))

	// no session, ignored
	d.Seek(time.Second)

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)
	d.Seek(30 * time.Second)
	require.Eventually(t, func() bool { return len(source.seekCalls()) == 1 }, eventually, tick)
	assert.Equal(t, [2]int64{0, 30000}, source.seekCalls()[0])
	require.Eventually(t, func() bool { return source.decoder.flushes.Load() == 1 }, eventually, tick)
	d.Stop()
}

func TestCurrentTimeAndVolume(t *testing.T) {
	audio := newFakeAudio(12.5)
	d, _, _ := newTestDecoder(endlessVideo(), audio)
	assert.Zero(t, d.CurrentTime())

	require.NoError(t, d.Start("movie.mp4", ModeVideo))
	waitForState(t, d, Playing)
	assert.Equal(t, 12.5, d.CurrentTime())

	d.SetVolume(0.25)
	assert.Equal(t, 0.25, d.Volume())
	d.Stop()
}
