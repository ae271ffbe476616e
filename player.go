package avplay

import (
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// A [Player] represents a media player for Ebitengine games, typically also
// including audio.
//
// The player is a simple abstraction layer around a [Decoder], which does
// the actual work on its own goroutines: frames are handed over as they are
// due and the player keeps the most recent one around for drawing.
//
// Usage is quite similar to Ebitengine audio players:
//   - Create a [NewPlayer]().
//   - Call [Player.Play]() to start the video.
//   - Audio will play automatically. Frames are obtained with [Player.CurrentFrame]().
//   - Use [Player.Pause]() and [Player.Stop]() to control the video.
//
// More methods are available, but that's the main idea.
type Player struct {
	decoder *Decoder
	path    string
	mode    Mode

	// written from decoder goroutines
	mutex       sync.Mutex
	pending     *Frame
	lastPTS     float64
	duration    time.Duration
	state       PlayState
	err         error
	ended       bool
	pixelAspect float64

	// only touched from the game goroutine
	currentFrame *ebiten.Image
	onBlackFrame bool
	muted        bool
	volume       float64
}

// Creates a new [Player] for pathOrURL. Nothing is opened until
// [Player.Play]() is called.
func NewPlayer(pathOrURL string, mode Mode, backend Backend, audio AudioSubsystem, cfg Config) *Player {
	p := &Player{
		path:         pathOrURL,
		mode:         mode,
		pixelAspect:  1.0,
		onBlackFrame: true,
		volume:       audio.Volume(),
	}
	p.decoder = NewDecoder(backend, audio, playerEvents{p}, cfg)
	return p
}

// Decoder returns the underlying decoder, e.g. to register its metrics.
func (p *Player) Decoder() *Decoder { return p.decoder }

// --- frames and resolution ---

// Returns an image with the most recent frame delivered by the decoder.
// While nothing has been decoded yet, or after [Player.Stop](), the image
// is black.
//
// The returned image is reused, so calling this method again will overwrite
// its contents. This means you can use the image between calls, but you should
// not store it for later use expecting the image to remain the same.
func (p *Player) CurrentFrame() *ebiten.Image {
	p.mutex.Lock()
	frame := p.pending
	p.pending = nil
	p.mutex.Unlock()

	if frame != nil {
		p.copyFrame(frame)
	} else if p.currentFrame == nil {
		p.currentFrame = ebiten.NewImage(1, 1)
		p.currentFrame.Fill(color.Black)
		p.onBlackFrame = true
	}
	return p.currentFrame
}

// Draws the current frame into viewport like [DrawWithPixelAspect]() does,
// taking the stream's pixel aspect ratio into account.
func (p *Player) Draw(viewport *ebiten.Image) {
	frame := p.CurrentFrame()
	p.mutex.Lock()
	pixelAspect := p.pixelAspect
	p.mutex.Unlock()
	DrawWithPixelAspect(viewport, frame, pixelAspect)
}

// Returns the width and height of the last frame, (0, 0) if none was
// delivered yet.
func (p *Player) Resolution() (int, int) {
	if p.currentFrame == nil || p.onBlackFrame {
		return 0, 0
	}
	bounds := p.currentFrame.Bounds()
	return bounds.Dx(), bounds.Dy()
}

// ---- playback states ----

// Returns the current player's state, which can be [Stopped], [Playing],
// [Paused] or [Finished].
func (p *Player) State() PlayState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

// Ended reports whether the last session played through to the end of the
// media. It stays false after [Player.Stop]() and until the next session
// ends on its own.
func (p *Player) Ended() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.ended
}

// Err returns the error that ended the last session, if any.
func (p *Player) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.err
}

// Play starts playback, or resumes it if the player is paused. If the
// player is already playing, nothing new happens. Stopped or finished
// players restart from the beginning.
func (p *Player) Play() error {
	switch p.decoder.State() {
	case Playing:
		return nil
	case Paused:
		p.decoder.TogglePause()
		return nil
	}

	p.mutex.Lock()
	p.err = nil
	p.pending = nil
	p.lastPTS = 0
	p.mutex.Unlock()
	p.blackFrame()
	if err := p.decoder.Start(p.path, p.mode); err != nil {
		return err
	}
	p.decoder.SetVolume(p.effectiveVolume())
	return nil
}

// Pauses playback. If the player isn't playing, nothing happens.
func (p *Player) Pause() {
	if p.decoder.State() == Playing {
		p.decoder.TogglePause()
	}
}

// Stops the player. Using [Player.Play]() again will cause the video to
// restart from the beginning.
func (p *Player) Stop() {
	p.decoder.Stop()
	p.mutex.Lock()
	p.pending = nil
	p.lastPTS = 0
	p.mutex.Unlock()
	p.blackFrame()
}

// --- timing ---

// Returns the player's current playback position: the audio clock when the
// media has audio, the timestamp of the last delivered frame otherwise.
func (p *Player) Position() time.Duration {
	seconds := p.decoder.CurrentTime()
	if seconds == 0 {
		p.mutex.Lock()
		seconds = p.lastPTS
		p.mutex.Unlock()
	}
	return time.Duration(seconds * float64(time.Second))
}

// Returns the media duration, 0 for live sources or while unknown.
func (p *Player) Duration() time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.duration
}

// Moves the playback position to the given one, relative to the start of
// the media. The decoder lands on the preceding keyframe, so the actual
// position can be somewhat earlier.
func (p *Player) Seek(position time.Duration) {
	p.decoder.Seek(max(position, 0))
}

// --- audio ---

// Gets the player's volume, in [0, 1].
func (p *Player) GetVolume() float64 { return p.volume }

// Sets the volume of the player, in [0, 1].
func (p *Player) SetVolume(volume float64) {
	p.volume = min(max(volume, 0), 1)
	p.decoder.SetVolume(p.effectiveVolume())
}

// Returns whether the player is muted or not.
func (p *Player) GetMuted() bool { return p.muted }

// Mutes or unmutes the player.
func (p *Player) SetMuted(muted bool) {
	p.muted = muted
	p.decoder.SetVolume(p.effectiveVolume())
}

// --- advanced operations ---

// Stops the player and releases the current frame image. The player can
// still be played again afterwards.
func (p *Player) Close() error {
	p.Stop()
	if p.currentFrame != nil {
		p.currentFrame.Deallocate()
		p.currentFrame = nil
	}
	return nil
}

// --- internal ---

func (p *Player) effectiveVolume() float64 {
	if p.muted {
		return 0.0
	}
	return p.volume
}

func (p *Player) blackFrame() {
	if p.currentFrame != nil && !p.onBlackFrame {
		p.currentFrame.Fill(color.Black)
		p.onBlackFrame = true
	}
}

func (p *Player) copyFrame(frame *Frame) {
	if p.currentFrame != nil {
		bounds := p.currentFrame.Bounds()
		if bounds.Dx() != frame.Width || bounds.Dy() != frame.Height {
			p.currentFrame.Deallocate()
			p.currentFrame = nil
		}
	}
	if p.currentFrame == nil {
		p.currentFrame = ebiten.NewImage(frame.Width, frame.Height)
	}
	p.currentFrame.WritePixels(frame.Pix)
	p.onBlackFrame = false
}

// playerEvents receives the decoder events on behalf of a Player.
type playerEvents struct{ p *Player }

func (e playerEvents) FrameReady(frame Frame) {
	if len(frame.Pix) != 4*frame.Width*frame.Height {
		pkgLogger.Printf("player: dropping %dx%d frame with %d bytes", frame.Width, frame.Height, len(frame.Pix))
		return
	}
	e.p.mutex.Lock()
	defer e.p.mutex.Unlock()
	e.p.pending = &frame
	e.p.lastPTS = frame.PTS
	if frame.SampleAspectRatio.Valid() {
		e.p.pixelAspect = frame.SampleAspectRatio.Float64()
	}
}

func (e playerEvents) DurationReported(duration time.Duration) {
	e.p.mutex.Lock()
	defer e.p.mutex.Unlock()
	e.p.duration = duration
}

func (e playerEvents) StateChanged(state PlayState) {
	e.p.mutex.Lock()
	defer e.p.mutex.Unlock()
	e.p.state = state
	if state == Playing {
		e.p.ended = false
	}
}

func (e playerEvents) MediaEnded() {
	e.p.mutex.Lock()
	defer e.p.mutex.Unlock()
	e.p.ended = true
}

func (e playerEvents) ReadFinished() {
	pkgLogger.Printf("player: %q fully read", e.p.path)
}

func (e playerEvents) SessionError(err error) {
	pkgLogger.Printf("player: %q: %v", e.p.path, err)
	e.p.mutex.Lock()
	defer e.p.mutex.Unlock()
	e.p.err = err
}
