// Package ffmpeg implements the avplay backend on top of go-astiav: the
// demuxer, the video decoder and the pixel conversion filter graph.
package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/erparts/go-avplay"
)

var _ avplay.Backend = Backend{}

// Backend opens sources through libavformat.
type Backend struct {
	// InputOptions are passed to avformat_open_input, e.g.
	// {"rtsp_transport": "tcp"}.
	InputOptions map[string]string
}

func (b Backend) Open(pathOrURL string) (avplay.Source, error) {
	return OpenSource(pathOrURL, b.InputOptions)
}

func (b Backend) NewFilterGraph(params avplay.VideoParams, description, pixelFormat string) (avplay.FilterGraph, error) {
	return NewFilterGraph(params, description, pixelFormat)
}

var _ avplay.Source = (*Source)(nil)

// Source is an opened input. It must only be used from one goroutine.
type Source struct {
	formatCtx *astiav.FormatContext
	streams   []avplay.StreamInfo
}

// OpenSource opens pathOrURL and reads its stream information.
func OpenSource(pathOrURL string, options map[string]string) (*Source, error) {
	formatCtx := astiav.AllocFormatContext()
	if formatCtx == nil {
		return nil, errors.New("ffmpeg: allocating format context failed")
	}

	var dict *astiav.Dictionary
	if len(options) > 0 {
		dict = astiav.NewDictionary()
		defer dict.Free()
		for key, value := range options {
			if err := dict.Set(key, value, 0); err != nil {
				formatCtx.Free()
				return nil, fmt.Errorf("ffmpeg: setting input option %s: %w", key, err)
			}
		}
	}

	if err := formatCtx.OpenInput(pathOrURL, nil, dict); err != nil {
		formatCtx.Free()
		return nil, fmt.Errorf("ffmpeg: opening input: %w", err)
	}
	if err := formatCtx.FindStreamInfo(nil); err != nil {
		formatCtx.CloseInput()
		formatCtx.Free()
		return nil, fmt.Errorf("ffmpeg: finding stream info: %w", err)
	}

	s := &Source{formatCtx: formatCtx}
	for _, stream := range formatCtx.Streams() {
		s.streams = append(s.streams, avplay.StreamInfo{
			Index:    stream.Index(),
			Type:     mediaType(stream.CodecParameters().MediaType()),
			TimeBase: rational(stream.TimeBase()),
		})
	}
	return s, nil
}

func (s *Source) FormatName() string {
	if format := s.formatCtx.InputFormat(); format != nil {
		return format.Name()
	}
	return ""
}

func (s *Source) Duration() time.Duration {
	duration := s.formatCtx.Duration()
	if duration <= 0 || duration == astiav.NoPtsValue {
		return 0
	}
	// AV_TIME_BASE is microseconds
	return time.Duration(duration) * time.Microsecond
}

func (s *Source) Streams() []avplay.StreamInfo { return s.streams }

// Stream returns the underlying astiav stream, nil if index is out of range.
func (s *Source) Stream(index int) *astiav.Stream {
	streams := s.formatCtx.Streams()
	if index < 0 || index >= len(streams) {
		return nil
	}
	return streams[index]
}

func (s *Source) ReadPacket() (avplay.Packet, error) {
	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, errors.New("ffmpeg: allocating packet failed")
	}
	if err := s.formatCtx.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &Packet{pkt: pkt}, nil
}

func (s *Source) SeekKeyframe(streamIndex int, timestamp int64) error {
	return s.formatCtx.SeekFrame(streamIndex, timestamp, astiav.NewSeekFlags(astiav.SeekFlagBackward))
}

// PauseRead does nothing: go-astiav has no av_read_pause binding. A paused
// session simply stops calling ReadPacket, and network sources buffer or
// drop on their own until reading resumes.
func (s *Source) PauseRead() error { return nil }

// ResumeRead does nothing, see [Source.PauseRead].
func (s *Source) ResumeRead() error { return nil }

func (s *Source) OpenVideoDecoder(streamIndex int) (avplay.VideoDecoder, error) {
	stream := s.Stream(streamIndex)
	if stream == nil {
		return nil, fmt.Errorf("ffmpeg: no stream %d", streamIndex)
	}
	return openVideoDecoder(stream)
}

func (s *Source) Close() error {
	if s.formatCtx == nil {
		return nil
	}
	s.formatCtx.CloseInput()
	s.formatCtx.Free()
	s.formatCtx = nil
	return nil
}

// --- conversions ---

func mediaType(t astiav.MediaType) avplay.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return avplay.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return avplay.MediaTypeAudio
	case astiav.MediaTypeSubtitle:
		return avplay.MediaTypeSubtitle
	default:
		return avplay.MediaTypeUnknown
	}
}

func rational(r astiav.Rational) avplay.Rational {
	return avplay.Rational{Num: r.Num(), Den: r.Den()}
}

func astiavRational(r avplay.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

// mapError turns astiav's EAGAIN/EOF into their avplay equivalents.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return avplay.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	default:
		return err
	}
}
