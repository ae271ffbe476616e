package avplay

import (
	"errors"
	"math/big"
	"time"
)

// ErrAgain is returned by [VideoDecoder] methods when the decoder needs more
// input before it can produce output. It is never fatal.
var ErrAgain = errors.New("decoder needs more input")

// MediaType classifies a demuxed stream.
type MediaType uint8

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeSubtitle
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Rational is a num/den fraction, typically a stream time base.
type Rational struct {
	Num int
	Den int
}

// Float64 returns the fraction as a float, or 0 if the denominator is 0.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// microsecondBase is the unit seek requests are expressed in.
var microsecondBase = Rational{Num: 1, Den: 1_000_000}

// rescale converts a from time base src to time base dst, rounding to the
// nearest integer with halfway cases away from zero.
func rescale(a int64, src, dst Rational) int64 {
	if !src.Valid() || !dst.Valid() {
		return a
	}
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(int64(src.Num)*int64(dst.Den)))
	den := big.NewInt(int64(src.Den) * int64(dst.Num))
	half := new(big.Int).Rsh(den, 1)
	if num.Sign() < 0 {
		num.Sub(num, half)
	} else {
		num.Add(num, half)
	}
	return num.Quo(num, den).Int64()
}

// StreamInfo describes one stream of an opened [Source].
type StreamInfo struct {
	Index    int
	Type     MediaType
	TimeBase Rational
}

// VideoParams are the decoder-side properties the filter graph source node
// is fed with.
type VideoParams struct {
	Width             int
	Height            int
	PixelFormat       string
	TimeBase          Rational // stream time base
	SampleAspectRatio Rational

	// FrameInterval is the nominal duration of one frame in seconds.
	FrameInterval float64
}

// Packet is an opaque compressed media chunk. Ownership moves exactly once
// from the producer to a queue to the consumer, which must call Release.
type Packet interface {
	StreamIndex() int
	Release()
}

// DecodedFrame is a raw frame produced by a [VideoDecoder].
type DecodedFrame interface {
	// PTS returns the presentation timestamp in stream time base units, and
	// false if the frame carries none.
	PTS() (int64, bool)

	// RepeatFields returns how many extra fields the frame must be displayed
	// for (repeat_pict); 0 for a regular progressive frame.
	RepeatFields() int

	// Width, Height, PixelFormat and SampleAspectRatio describe the frame
	// itself, which may differ from the decoder's opening parameters after
	// a mid-stream change.
	Width() int
	Height() int
	PixelFormat() string
	SampleAspectRatio() Rational

	Release()
}

// Picture is a converted frame pulled from a [FilterGraph]. Its bytes may
// alias a buffer that the graph reuses on the next Pull.
type Picture interface {
	Bytes() ([]byte, error)

	// Width and Height are the converted size, which a filter chain may
	// have changed.
	Width() int
	Height() int

	Release()
}

// Backend opens media sources and builds filter graphs. The ffmpeg
// subpackage provides the go-astiav implementation.
type Backend interface {
	Open(pathOrURL string) (Source, error)

	// NewFilterGraph builds a source -> [description] -> sink graph whose
	// sink only emits pixelFormat. An empty description links source and
	// sink directly.
	NewFilterGraph(params VideoParams, description, pixelFormat string) (FilterGraph, error)
}

// Source is an opened demuxer. It is owned by the read loop goroutine.
type Source interface {
	// FormatName returns the short name of the detected container/protocol.
	FormatName() string

	// Duration returns the total duration read from the container (0 if unknown).
	Duration() time.Duration

	Streams() []StreamInfo

	// ReadPacket returns the next packet, or io.EOF at end of stream.
	ReadPacket() (Packet, error)

	// SeekKeyframe seeks streamIndex to the nearest keyframe at or before
	// timestamp, expressed in the stream time base.
	SeekKeyframe(streamIndex int, timestamp int64) error

	// PauseRead and ResumeRead forward pause state to network protocols.
	// Backends without such a primitive may treat them as no-ops.
	PauseRead() error
	ResumeRead() error

	OpenVideoDecoder(streamIndex int) (VideoDecoder, error)

	Close() error
}

// VideoDecoder decodes packets of a single video stream.
type VideoDecoder interface {
	Params() VideoParams

	// SendPacket submits a packet. [ErrAgain] and io.EOF are not errors.
	SendPacket(Packet) error

	// ReceiveFrame returns one decoded frame, [ErrAgain] if none is ready
	// yet, or io.EOF once fully drained.
	ReceiveFrame() (DecodedFrame, error)

	// FlushBuffers discards internally buffered reference frames.
	FlushBuffers()

	Close()
}

// FilterGraph converts decoded frames into the interchange pixel format.
type FilterGraph interface {
	Push(DecodedFrame) error
	Pull() (Picture, error)
	Close()
}
