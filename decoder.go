// Package avplay implements a media playback core: a demux/read goroutine,
// a video decode goroutine paced by the audio clock, per-stream packet
// queues and a seek/flush protocol, coordinated through a small play state
// machine.
//
// Usage:
//   - Create a [Decoder] with [NewDecoder](), passing a [Backend] (see the
//     ffmpeg subpackage), an [AudioSubsystem] (see the audio subpackage)
//     and a [Listener] for frames and state changes.
//   - Call [Decoder.Start]() with a path or URL.
//   - Use [Decoder.TogglePause](), [Decoder.Seek]() and [Decoder.Stop]().
//
// [Player] wraps all of this for Ebitengine games.
package avplay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Session errors. They're reported through [Listener.SessionError] and
// always followed by a [Stopped] state change.
var (
	ErrOpenFailure   = errors.New("source could not be opened")
	ErrNoStreamFound = errors.New("required stream not found")
	ErrDecoderInit   = errors.New("video decoder could not be initialized")
	ErrFilterGraph   = errors.New("filter graph could not be built")
	ErrAudioInit     = errors.New("audio subsystem could not be opened")
	ErrEmptySource   = errors.New("empty path or url")
	ErrInvalidMode   = errors.New("invalid playback mode")
)

// Decoder is the playback controller. Its command methods are safe for
// concurrent use.
type Decoder struct {
	backend  Backend
	audio    AudioSubsystem
	listener Listener
	cfg      Config
	metrics  *Metrics
	softLog  *throttledLogger

	videoQueue *PacketQueue
	states     *playStateMachine

	// mutex serializes Start, Stop and TogglePause
	mutex   sync.Mutex
	current atomic.Pointer[session]
	workers *errgroup.Group

	sleep func(time.Duration)
}

// NewDecoder creates a decoder. listener may be nil.
func NewDecoder(backend Backend, audio AudioSubsystem, listener Listener, cfg Config) *Decoder {
	if backend == nil || audio == nil {
		panic("nil backend or audio subsystem")
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	d := &Decoder{
		backend:    backend,
		audio:      audio,
		listener:   listener,
		cfg:        cfg.withDefaults(),
		metrics:    newMetrics(),
		softLog:    newThrottledLogger(time.Second),
		videoQueue: NewPacketQueue(),
		sleep:      time.Sleep,
	}
	d.states = newPlayStateMachine(d.broadcastState)
	audio.SetFinishedHandler(d.audioFinished)
	return d
}

// Start plays pathOrURL in the given mode. A session already in progress is
// stopped first. Opening happens asynchronously: failures are reported via
// [Listener.SessionError] followed by a [Stopped] state change.
func (d *Decoder) Start(pathOrURL string, mode Mode) error {
	if pathOrURL == "" {
		return ErrEmptySource
	}
	if mode != ModeVideo && mode != ModeAudio {
		return ErrInvalidMode
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.workers != nil {
		d.noLockStop()
	}
	d.noLockReset()

	pkgLogger.Printf("decoder: starting %q in %s mode", pathOrURL, mode)
	s := newSession(pathOrURL, mode)
	d.current.Store(s)
	workers := new(errgroup.Group)
	d.workers = workers
	workers.Go(func() error {
		d.runController(s, workers)
		return nil
	})
	return nil
}

// Stop requests the current session to stop and waits until its goroutines
// have finished with every shared resource. The [Stopped] state change is
// broadcast before Stop returns.
func (d *Decoder) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.noLockStop()
}

// preconditions: d.mutex is locked
func (d *Decoder) noLockStop() {
	s := d.current.Load()
	if s == nil || d.workers == nil {
		d.states.stop()
		return
	}

	s.controllerStop.Store(true)
	s.stop.Store(true)
	d.videoQueue.Interrupt()
	if s.audioOpened.Load() {
		d.audio.StopAudio()
	}

	for !s.readFinished.Load() || (s.mode == ModeVideo && !s.decodeFinished.Load()) {
		d.sleep(d.cfg.PausePoll)
	}
	_ = d.workers.Wait()
	d.workers = nil

	// a session that ended naturally leaves Finished behind
	if d.states.Current() != Stopped {
		d.states.stop()
	}
}

// clears leftovers from the previous session (clearData)
//
// preconditions: d.mutex is locked, no session goroutine is running
func (d *Decoder) noLockReset() {
	d.videoQueue.Drain()
	d.metrics.videoQueueDepth.Set(0)
	d.audio.EmptyAudioData()
	d.current.Store(nil)
}

// TogglePause pauses a playing session or resumes a paused one. It does
// nothing while stopped or finished.
func (d *Decoder) TogglePause() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	s := d.current.Load()
	state := d.states.Current()
	if s == nil || (state != Playing && state != Paused) {
		return
	}

	paused := !s.paused.Load()
	s.paused.Store(paused)
	if s.audioOpened.Load() {
		d.audio.PauseAudio(paused)
	}
	// the source itself is paused by the read loop, which owns it
	if paused {
		d.states.pause()
	} else {
		d.states.resume()
	}
}

// Seek requests a jump to position. While a previous request hasn't been
// serviced yet, new requests are dropped.
func (d *Decoder) Seek(position time.Duration) {
	s := d.current.Load()
	if s == nil || s.stopped() {
		return
	}
	if !s.requestSeek(position.Microseconds()) {
		pkgLogger.Printf("seek: request to %v dropped, previous seek still pending", position)
	}
}

// Volume returns the audio subsystem volume.
func (d *Decoder) Volume() float64 { return d.audio.Volume() }

// SetVolume sets the audio subsystem volume.
func (d *Decoder) SetVolume(volume float64) { d.audio.SetVolume(volume) }

// CurrentTime returns the audio clock in seconds, or 0 if the current
// session has no audio stream.
func (d *Decoder) CurrentTime() float64 {
	s := d.current.Load()
	if s == nil || !s.audioOpened.Load() {
		return 0
	}
	return d.audio.AudioClock()
}

// State returns the current play state.
func (d *Decoder) State() PlayState { return d.states.Current() }

// Metrics returns the decoder's Prometheus collectors.
func (d *Decoder) Metrics() *Metrics { return d.metrics }

func (d *Decoder) broadcastState(state PlayState) {
	d.metrics.stateChanges.WithLabelValues(state.String()).Inc()
	d.listener.StateChanged(state)
}

// audioFinished is called by the audio subsystem once it has played
// everything queued before end of stream.
func (d *Decoder) audioFinished() {
	s := d.current.Load()
	if s == nil {
		return
	}
	pkgLogger.Printf("decoder: audio playback finished")
	s.stop.Store(true)
}
