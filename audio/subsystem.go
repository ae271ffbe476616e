// Package audio implements avplay's audio subsystem: packets are decoded
// with go-astiav, resampled to the ebitengine audio context format and
// played through an ebitengine audio player, whose position drives the
// audio clock.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"golang.org/x/time/rate"

	"github.com/erparts/go-avplay"
)

// player buffer size of 40ms should be ok on desktops. 70ms should be
// ok on wasm/web. for microcontrollers, you might have to experiment.
const playerBufferSize time.Duration = 100 * time.Millisecond

// ebitengine players consume signed 16 bit little endian stereo
const bytesPerSample = 4

var (
	ErrNilAudioContext   = errors.New("no ebitengine audio context")
	ErrUnsupportedSource = errors.New("source doesn't expose astiav streams")
)

// StreamSource is implemented by sources that can hand out their astiav
// streams, such as [github.com/erparts/go-avplay/ffmpeg.Source].
type StreamSource interface {
	Stream(index int) *astiav.Stream
}

// PacketSource is implemented by packets backed by an astiav packet.
type PacketSource interface {
	AVPacket() *astiav.Packet
}

var _ avplay.AudioSubsystem = (*Subsystem)(nil)

// Subsystem is an [avplay.AudioSubsystem]. It keeps its own packet queue,
// fed by the read loop and consumed by the ebitengine player goroutine.
//
// Ebitengine calls the reader with its stream lock held, and the same lock
// is taken by the player methods. So the reader only ever takes
// decodeMutex, and player methods are only called with mutex held. Lock
// order is mutex, then decodeMutex.
type Subsystem struct {
	context *audio.Context
	queue   *avplay.PacketQueue

	// mutex protects the player side
	mutex     sync.Mutex
	volume    float64
	paused    bool
	player    *audio.Player
	lastClock float64

	// decodeMutex protects the decoding side, shared with the reader
	decodeMutex sync.Mutex
	decoder     *decoder
	clockBase   float64
	clockSet    bool

	reader       atomic.Pointer[reader]
	onFinished   atomic.Pointer[func()]
	readFinished atomic.Bool

	softLog rate.Sometimes
}

// New creates a subsystem that plays through context. If context is nil,
// the current ebitengine context is used, or one is created at the sample
// rate of the first opened stream.
func New(context *audio.Context) *Subsystem {
	return &Subsystem{
		context: context,
		queue:   avplay.NewPacketQueue(),
		volume:  1.0,
		softLog: rate.Sometimes{First: 5, Interval: time.Second},
	}
}

func (s *Subsystem) OpenAudio(src avplay.Source, streamIndex int) error {
	streams, ok := src.(StreamSource)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}
	stream := streams.Stream(streamIndex)
	if stream == nil {
		return fmt.Errorf("audio: no stream %d", streamIndex)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.noLockClose()

	if err := s.noLockEnsureContext(stream.CodecParameters().SampleRate()); err != nil {
		return err
	}
	dec, err := newDecoder(stream, s.context.SampleRate())
	if err != nil {
		return err
	}
	s.decodeMutex.Lock()
	s.decoder = dec
	s.clockSet = false
	s.decodeMutex.Unlock()

	s.readFinished.Store(false)
	s.lastClock = 0
	if err := s.noLockCreatePlayer(); err != nil {
		s.noLockClose()
		return err
	}
	avplay.Logf("audio: opened stream %d, %d Hz -> %d Hz", streamIndex, stream.CodecParameters().SampleRate(), s.context.SampleRate())
	return nil
}

// preconditions: s.mutex is locked
func (s *Subsystem) noLockEnsureContext(sampleRate int) error {
	if s.context != nil {
		return nil
	}
	if s.context = audio.CurrentContext(); s.context != nil {
		return nil
	}
	if sampleRate <= 0 {
		return ErrNilAudioContext
	}
	s.context = audio.NewContext(sampleRate)
	return nil
}

// preconditions: s.mutex is locked
func (s *Subsystem) noLockCreatePlayer() error {
	r := &reader{owner: s}
	player, err := s.context.NewPlayer(r)
	if err != nil {
		return err
	}
	player.SetBufferSize(playerBufferSize)
	player.SetVolume(s.volume)
	s.reader.Store(r)
	s.player = player
	if !s.paused {
		s.player.Play()
	}
	return nil
}

// preconditions: s.mutex is locked
func (s *Subsystem) noLockHaltPlayer() {
	if r := s.reader.Swap(nil); r != nil {
		r.closed.Store(true)
	}
	if s.player != nil {
		s.player.Pause()
		if err := s.player.Close(); err != nil {
			avplay.Logf("audio: closing player: %v", err)
		}
		s.player = nil
	}
}

// preconditions: s.mutex is locked
func (s *Subsystem) noLockClose() {
	s.noLockHaltPlayer()
	s.queue.Drain()

	s.decodeMutex.Lock()
	defer s.decodeMutex.Unlock()
	if s.decoder != nil {
		s.decoder.close()
		s.decoder = nil
	}
	s.clockSet = false
}

func (s *Subsystem) PacketEnqueue(e avplay.Entry) {
	s.queue.Push(e)
}

// EmptyAudioData drops queued packets and buffered samples. The player is
// recreated, which restarts its position; the clock base is taken again
// from the next decoded frame.
func (s *Subsystem) EmptyAudioData() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.readFinished.Store(false)

	s.decodeMutex.Lock()
	opened := s.decoder != nil
	s.decodeMutex.Unlock()
	if !opened {
		s.queue.Drain()
		return
	}

	s.lastClock = s.noLockClock()
	s.noLockHaltPlayer()
	s.queue.Drain()
	s.decodeMutex.Lock()
	s.clockSet = false
	s.decodeMutex.Unlock()
	if err := s.noLockCreatePlayer(); err != nil {
		avplay.Logf("audio: recreating player: %v", err)
	}
}

func (s *Subsystem) PauseAudio(paused bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.paused = paused
	if s.player == nil {
		return
	}
	if paused {
		s.player.Pause()
	} else {
		s.player.Play()
	}
}

func (s *Subsystem) StopAudio() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.noLockHaltPlayer()
	s.paused = false
}

func (s *Subsystem) CloseAudio() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.noLockClose()
	s.paused = false
}

func (s *Subsystem) ReadFinished() { s.readFinished.Store(true) }

func (s *Subsystem) SetFinishedHandler(fn func()) {
	if fn == nil {
		s.onFinished.Store(nil)
		return
	}
	s.onFinished.Store(&fn)
}

// AudioClock returns the pts of the first frame decoded since the last
// open or flush plus the player position.
func (s *Subsystem) AudioClock() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.noLockClock()
}

// preconditions: s.mutex is locked
func (s *Subsystem) noLockClock() float64 {
	s.decodeMutex.Lock()
	base, set := s.clockBase, s.clockSet
	s.decodeMutex.Unlock()
	if !set || s.player == nil {
		return s.lastClock
	}
	return base + s.player.Position().Seconds()
}

func (s *Subsystem) Volume() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.volume
}

func (s *Subsystem) SetVolume(volume float64) {
	volume = min(max(volume, 0), 1)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.volume = volume
	if s.player != nil {
		s.player.SetVolume(volume)
	}
}

// decodeNext decodes queued packets for r until some samples are produced.
// It returns false when nothing is available right now. Called from Read.
func (s *Subsystem) decodeNext(r *reader) bool {
	s.decodeMutex.Lock()
	defer s.decodeMutex.Unlock()
	if r.closed.Load() || s.decoder == nil {
		return false
	}

	for {
		entry, ok := s.queue.Dequeue(false)
		if !ok {
			return false
		}
		if entry.IsFlush() {
			if err := s.decoder.flush(); err != nil {
				s.logSoftFailure("audio: flushing decoder: %v", err)
			}
			continue
		}

		packet, ok := entry.Packet().(PacketSource)
		if !ok || packet.AVPacket() == nil {
			entry.Release()
			continue
		}
		pts, samples, err := s.decoder.decode(packet.AVPacket())
		entry.Release()
		if err != nil {
			s.logSoftFailure("audio: decode failed: %v", err)
			continue
		}
		if len(samples) == 0 {
			continue
		}
		if !s.clockSet && pts >= 0 {
			s.clockBase = pts
			s.clockSet = true
		}
		r.leftover = append(r.leftover, samples...)
		return true
	}
}

// finish reports the end of playback for r's generation, once. Called from
// Read, so it only touches atomics.
func (s *Subsystem) finish(r *reader) {
	if !r.finished.CompareAndSwap(false, true) {
		return
	}
	if s.reader.Load() != r {
		return
	}
	if fn := s.onFinished.Load(); fn != nil {
		(*fn)()
	}
}

// logSoftFailure logs per-packet failures, throttled so that a corrupt
// stream can't flood the log.
func (s *Subsystem) logSoftFailure(format string, v ...any) {
	s.softLog.Do(func() { avplay.Logf(format, v...) })
}
