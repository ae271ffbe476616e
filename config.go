package avplay

import (
	"strings"
	"time"
)

// Default tunables. Reaction latency to stop and pause is bounded by
// PausePoll, so keep it around 10ms.
const (
	DefaultBackpressureThreshold = 512
	DefaultPausePoll             = 10 * time.Millisecond
	DefaultEmptyQueuePoll        = 1 * time.Millisecond
	DefaultIdlePoll              = 100 * time.Millisecond
	DefaultMaxSyncStep           = 5 * time.Millisecond
	DefaultAudioStallTimeout     = time.Second
	DefaultFilterDescription     = "pp=hb/vb/dr/al"
	DefaultOutputPixelFormat     = "rgba"
)

// Config holds the decoder tunables. Zero fields take the defaults above,
// except FilterDescription, which is only defaulted by [DefaultConfig] since
// an empty description is meaningful (no filter chain).
type Config struct {
	// BackpressureThreshold is the video queue depth above which the read
	// loop stops reading ahead.
	BackpressureThreshold int

	PausePoll      time.Duration
	EmptyQueuePoll time.Duration
	IdlePoll       time.Duration // audio-only idle phase after end of stream

	// MaxSyncStep caps each sleep while video waits for the audio clock.
	MaxSyncStep time.Duration

	// AudioStallTimeout releases frames once reading has finished and the
	// audio clock hasn't moved for this long (audio shorter than video).
	AudioStallTimeout time.Duration

	// FilterDescription is an avfilter chain inserted between the source and
	// sink nodes, e.g. "pp=hb/vb/dr/al". Empty links them directly.
	FilterDescription string

	// OutputPixelFormat is the interchange format of delivered frames.
	// "rgba" can be written straight into an *ebiten.Image.
	OutputPixelFormat string

	// RealtimeFormats and RealtimeSchemes identify live sources, which
	// report a duration of 0.
	RealtimeFormats []string
	RealtimeSchemes []string
}

func DefaultConfig() Config {
	return Config{
		BackpressureThreshold: DefaultBackpressureThreshold,
		PausePoll:             DefaultPausePoll,
		EmptyQueuePoll:        DefaultEmptyQueuePoll,
		IdlePoll:              DefaultIdlePoll,
		MaxSyncStep:           DefaultMaxSyncStep,
		AudioStallTimeout:     DefaultAudioStallTimeout,
		FilterDescription:     DefaultFilterDescription,
		OutputPixelFormat:     DefaultOutputPixelFormat,
		RealtimeFormats:       []string{"rtp", "rtsp", "sdp"},
		RealtimeSchemes:       []string{"rtp:", "udp:"},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BackpressureThreshold <= 0 {
		c.BackpressureThreshold = def.BackpressureThreshold
	}
	if c.PausePoll <= 0 {
		c.PausePoll = def.PausePoll
	}
	if c.EmptyQueuePoll <= 0 {
		c.EmptyQueuePoll = def.EmptyQueuePoll
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = def.IdlePoll
	}
	if c.MaxSyncStep <= 0 {
		c.MaxSyncStep = def.MaxSyncStep
	}
	if c.AudioStallTimeout <= 0 {
		c.AudioStallTimeout = def.AudioStallTimeout
	}
	if c.OutputPixelFormat == "" {
		c.OutputPixelFormat = def.OutputPixelFormat
	}
	if c.RealtimeFormats == nil {
		c.RealtimeFormats = def.RealtimeFormats
	}
	if c.RealtimeSchemes == nil {
		c.RealtimeSchemes = def.RealtimeSchemes
	}
	return c
}

// isRealtime reports whether a source is live, judging by its demuxer name
// and the URL scheme it was opened with.
func (c Config) isRealtime(formatName, pathOrURL string) bool {
	for _, name := range c.RealtimeFormats {
		if formatName == name {
			return true
		}
	}
	for _, scheme := range c.RealtimeSchemes {
		if strings.HasPrefix(pathOrURL, scheme) {
			return true
		}
	}
	return false
}
