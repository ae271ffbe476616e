package avplay

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects what a session plays.
type Mode uint8

const (
	// ModeVideo requires a video stream; audio is optional.
	ModeVideo Mode = iota
	// ModeAudio requires an audio stream; video streams are ignored.
	ModeAudio
)

func (m Mode) String() string {
	switch m {
	case ModeVideo:
		return "video"
	case ModeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// session is the state of one playback. Control flags are atomics polled by
// both goroutines; the source, decoder and filter graph belong to the read
// loop, except that the video goroutine uses the decoder and filter graph
// until decodeFinished is set.
type session struct {
	path string
	mode Mode

	// set once by the read loop before the video goroutine starts
	videoIndex    int
	audioIndex    int
	subtitleIndex int
	videoStream   StreamInfo
	audioStream   StreamInfo
	duration      time.Duration
	realtime      bool

	source      Source
	videoDec    VideoDecoder
	filter      FilterGraph
	audioOpened atomic.Bool

	// filterParams describes the frames filter was built for. Owned by the
	// video goroutine once it runs.
	filterParams VideoParams

	stop           atomic.Bool
	controllerStop atomic.Bool // stop requested through Decoder.Stop
	paused         atomic.Bool
	readFinished   atomic.Bool
	decodeFinished atomic.Bool

	seekMutex   sync.Mutex
	seekPending atomic.Bool
	seekTarget  int64 // microseconds, guarded by seekMutex

	videoClock atomic.Uint64 // float64 bits, seconds
}

func newSession(path string, mode Mode) *session {
	s := &session{
		path:          path,
		mode:          mode,
		videoIndex:    -1,
		audioIndex:    -1,
		subtitleIndex: -1,
	}
	// no video goroutine yet; the read loop clears this when spawning it
	s.decodeFinished.Store(true)
	return s
}

func (s *session) hasAudio() bool { return s.audioIndex >= 0 }

// requestSeek records a seek target unless one is already pending, in which
// case the request is dropped and false is returned.
func (s *session) requestSeek(microseconds int64) bool {
	s.seekMutex.Lock()
	defer s.seekMutex.Unlock()
	if s.seekPending.Load() {
		return false
	}
	s.seekTarget = microseconds
	s.seekPending.Store(true)
	return true
}

func (s *session) pendingSeekTarget() int64 {
	s.seekMutex.Lock()
	defer s.seekMutex.Unlock()
	return s.seekTarget
}

func (s *session) clearSeek() {
	s.seekMutex.Lock()
	s.seekPending.Store(false)
	s.seekMutex.Unlock()
}

func (s *session) loadVideoClock() float64 {
	return math.Float64frombits(s.videoClock.Load())
}

func (s *session) storeVideoClock(seconds float64) {
	s.videoClock.Store(math.Float64bits(seconds))
}

// stopped reports whether the session must wind down.
func (s *session) stopped() bool { return s.stop.Load() }
