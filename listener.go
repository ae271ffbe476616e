package avplay

import "time"

// Frame is a converted video frame in the configured interchange pixel
// format. Pix is owned by the receiver.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
	PTS    float64 // seconds

	// SampleAspectRatio is the pixel shape, invalid (0/0) when unknown
	SampleAspectRatio Rational
}

// Listener receives the decoder's outbound events. Methods are called from
// the decoder goroutines and must not block for long, and must not call
// [Decoder.Stop] or [Decoder.Start] synchronously.
type Listener interface {
	FrameReady(Frame)
	DurationReported(time.Duration)
	StateChanged(PlayState)
	ReadFinished()

	// MediaEnded is called once when a session plays through to the end of
	// the media, right before its final state change. Explicit stops and
	// failed sessions don't report it. In audio mode the final state is
	// [Stopped], so this is how a finished track is told apart.
	MediaEnded()

	SessionError(error)
}

// ListenerFuncs adapts optional callbacks to a [Listener]. Nil fields are
// ignored.
type ListenerFuncs struct {
	OnFrame        func(Frame)
	OnDuration     func(time.Duration)
	OnStateChanged func(PlayState)
	OnReadFinished func()
	OnMediaEnded   func()
	OnError        func(error)
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) FrameReady(f Frame) {
	if l.OnFrame != nil {
		l.OnFrame(f)
	}
}

func (l ListenerFuncs) DurationReported(d time.Duration) {
	if l.OnDuration != nil {
		l.OnDuration(d)
	}
}

func (l ListenerFuncs) StateChanged(s PlayState) {
	if l.OnStateChanged != nil {
		l.OnStateChanged(s)
	}
}

func (l ListenerFuncs) ReadFinished() {
	if l.OnReadFinished != nil {
		l.OnReadFinished()
	}
}

func (l ListenerFuncs) MediaEnded() {
	if l.OnMediaEnded != nil {
		l.OnMediaEnded()
	}
}

func (l ListenerFuncs) SessionError(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}
