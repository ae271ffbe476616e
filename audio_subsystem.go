package avplay

// AudioSubsystem decodes and plays the selected audio stream on its own
// goroutines. Its queue, clock and volume are internal; the decoder only
// talks to it through this interface. The audio subpackage implements it
// on top of go-astiav and ebitengine.
type AudioSubsystem interface {
	// OpenAudio prepares decoding of streamIndex from src.
	OpenAudio(src Source, streamIndex int) error

	// PacketEnqueue hands over a packet or a flush marker.
	PacketEnqueue(Entry)

	// EmptyAudioData discards queued packets and buffered samples.
	EmptyAudioData()

	PauseAudio(paused bool)
	StopAudio()
	CloseAudio()

	// ReadFinished tells the subsystem no more packets will arrive, so it
	// can report the end of playback once its queue runs dry.
	ReadFinished()

	// SetFinishedHandler registers fn to be called once all audio queued
	// before ReadFinished has been played. fn may be called from any
	// goroutine, including the audio output goroutine, so it must only set
	// flags and never call back into the subsystem.
	SetFinishedHandler(fn func())

	// AudioClock returns the playback position of the audio currently
	// heard, in seconds.
	AudioClock() float64

	Volume() float64
	SetVolume(volume float64)
}
