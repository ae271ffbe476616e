package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/erparts/go-avplay"
)

var _ avplay.VideoDecoder = (*VideoDecoder)(nil)

// VideoDecoder is a software video decoder for one stream.
type VideoDecoder struct {
	codecCtx *astiav.CodecContext
	params   avplay.VideoParams

	// private copy of the stream parameters, used to reopen the codec
	// context without touching the demuxer
	codecParams *astiav.CodecParameters
	timeBase    astiav.Rational
}

func openVideoDecoder(stream *astiav.Stream) (*VideoDecoder, error) {
	codecParams := astiav.AllocCodecParameters()
	if codecParams == nil {
		return nil, errors.New("ffmpeg: allocating codec parameters failed")
	}
	if err := stream.CodecParameters().Copy(codecParams); err != nil {
		codecParams.Free()
		return nil, fmt.Errorf("ffmpeg: copying codec parameters: %w", err)
	}
	codecCtx, err := openCodecContext(codecParams, stream.TimeBase())
	if err != nil {
		codecParams.Free()
		return nil, err
	}

	timeBase := rational(stream.TimeBase())
	frameRate := stream.AvgFrameRate()
	if frameRate.Num() <= 0 || frameRate.Den() <= 0 {
		frameRate = codecCtx.Framerate()
	}
	var frameInterval float64
	if frameRate.Num() > 0 && frameRate.Den() > 0 {
		frameInterval = float64(frameRate.Den()) / float64(frameRate.Num())
	} else if timeBase.Valid() {
		frameInterval = timeBase.Float64()
	}

	return &VideoDecoder{
		codecCtx:    codecCtx,
		codecParams: codecParams,
		timeBase:    stream.TimeBase(),
		params: avplay.VideoParams{
			Width:             codecCtx.Width(),
			Height:            codecCtx.Height(),
			PixelFormat:       codecCtx.PixelFormat().String(),
			TimeBase:          timeBase,
			SampleAspectRatio: rational(codecCtx.SampleAspectRatio()),
			FrameInterval:     frameInterval,
		},
	}, nil
}

// openCodecContext allocates and opens a decoder context for codecParams.
func openCodecContext(codecParams *astiav.CodecParameters, timeBase astiav.Rational) (*astiav.CodecContext, error) {
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("ffmpeg: no decoder for codec %s", codecParams.CodecID())
	}
	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return nil, errors.New("ffmpeg: allocating codec context failed")
	}
	if err := codecParams.ToCodecContext(codecCtx); err != nil {
		codecCtx.Free()
		return nil, fmt.Errorf("ffmpeg: copying codec parameters: %w", err)
	}
	codecCtx.SetTimeBase(timeBase)
	if err := codecCtx.Open(codec, nil); err != nil {
		codecCtx.Free()
		return nil, fmt.Errorf("ffmpeg: opening %s decoder: %w", codec.Name(), err)
	}
	return codecCtx, nil
}

func (d *VideoDecoder) Params() avplay.VideoParams { return d.params }

func (d *VideoDecoder) SendPacket(packet avplay.Packet) error {
	p, ok := packet.(*Packet)
	if !ok || p.AVPacket() == nil {
		return fmt.Errorf("ffmpeg: unexpected packet %T", packet)
	}
	return mapError(d.codecCtx.SendPacket(p.AVPacket()))
}

func (d *VideoDecoder) ReceiveFrame() (avplay.DecodedFrame, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, errors.New("ffmpeg: allocating frame failed")
	}
	if err := d.codecCtx.ReceiveFrame(f); err != nil {
		f.Free()
		return nil, mapError(err)
	}
	return &Frame{frame: f}, nil
}

// FlushBuffers drops every buffered reference frame. go-astiav has no
// avcodec_flush_buffers binding, so the codec context is reopened from the
// stream parameters instead. If reopening fails the old context is kept.
func (d *VideoDecoder) FlushBuffers() {
	codecCtx, err := openCodecContext(d.codecParams, d.timeBase)
	if err != nil {
		avplay.Logf("ffmpeg: reopening video decoder after flush: %v", err)
		return
	}
	d.codecCtx.Free()
	d.codecCtx = codecCtx
}

func (d *VideoDecoder) Close() {
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
	if d.codecParams != nil {
		d.codecParams.Free()
		d.codecParams = nil
	}
}

var _ avplay.DecodedFrame = (*Frame)(nil)

// Frame is a decoded picture owned by the caller until released.
type Frame struct {
	frame *astiav.Frame
}

func (f *Frame) PTS() (int64, bool) {
	pts := f.frame.Pts()
	if pts == astiav.NoPtsValue {
		return 0, false
	}
	return pts, true
}

// RepeatFields is always 0: go-astiav doesn't expose repeat_pict.
func (f *Frame) RepeatFields() int { return 0 }

func (f *Frame) Width() int  { return f.frame.Width() }
func (f *Frame) Height() int { return f.frame.Height() }

func (f *Frame) PixelFormat() string {
	if f.frame.PixelFormat() == astiav.PixelFormatNone {
		return ""
	}
	return f.frame.PixelFormat().String()
}

func (f *Frame) SampleAspectRatio() avplay.Rational {
	return rational(f.frame.SampleAspectRatio())
}

func (f *Frame) Release() {
	if f.frame != nil {
		f.frame.Free()
		f.frame = nil
	}
}
