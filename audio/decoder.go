package audio

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// decoder turns audio packets into interleaved s16 stereo samples at the
// output sample rate.
type decoder struct {
	codecCtx    *astiav.CodecContext
	codecParams *astiav.CodecParameters
	resampler   *astiav.SoftwareResampleContext
	decoded     *astiav.Frame
	resampled   *astiav.Frame
	timeBase    astiav.Rational
	sampleRate  int
}

func newDecoder(stream *astiav.Stream, sampleRate int) (*decoder, error) {
	codecParams := astiav.AllocCodecParameters()
	if codecParams == nil {
		return nil, errors.New("audio: allocating codec parameters failed")
	}
	if err := stream.CodecParameters().Copy(codecParams); err != nil {
		codecParams.Free()
		return nil, fmt.Errorf("audio: copying codec parameters: %w", err)
	}
	codecCtx, err := openCodecContext(codecParams, stream.TimeBase())
	if err != nil {
		codecParams.Free()
		return nil, err
	}

	resampler := astiav.AllocSoftwareResampleContext()
	if resampler == nil {
		codecCtx.Free()
		codecParams.Free()
		return nil, errors.New("audio: allocating resample context failed")
	}

	return &decoder{
		codecCtx:    codecCtx,
		codecParams: codecParams,
		resampler:   resampler,
		decoded:     astiav.AllocFrame(),
		resampled:   astiav.AllocFrame(),
		timeBase:    stream.TimeBase(),
		sampleRate:  sampleRate,
	}, nil
}

func openCodecContext(codecParams *astiav.CodecParameters, timeBase astiav.Rational) (*astiav.CodecContext, error) {
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("audio: no decoder for codec %s", codecParams.CodecID())
	}
	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return nil, errors.New("audio: allocating codec context failed")
	}
	if err := codecParams.ToCodecContext(codecCtx); err != nil {
		codecCtx.Free()
		return nil, fmt.Errorf("audio: copying codec parameters: %w", err)
	}
	codecCtx.SetTimeBase(timeBase)
	if err := codecCtx.Open(codec, nil); err != nil {
		codecCtx.Free()
		return nil, fmt.Errorf("audio: opening %s decoder: %w", codec.Name(), err)
	}
	return codecCtx, nil
}

// decode submits one packet and returns the pts, in seconds, of the first
// frame it produced (-1 if unknown) along with all resampled samples.
func (d *decoder) decode(pkt *astiav.Packet) (float64, []byte, error) {
	if err := d.codecCtx.SendPacket(pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return -1, nil, err
	}

	pts := -1.0
	var samples []byte
	for {
		if err := d.codecCtx.ReceiveFrame(d.decoded); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return pts, samples, nil
			}
			return pts, samples, err
		}
		if pts < 0 && d.decoded.Pts() != astiav.NoPtsValue {
			pts = float64(d.decoded.Pts()) * d.timeBase.Float64()
		}
		out, err := d.resample()
		d.decoded.Unref()
		if err != nil {
			return pts, samples, err
		}
		samples = append(samples, out...)
	}
}

func (d *decoder) resample() ([]byte, error) {
	d.resampled.Unref()
	d.resampled.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.resampled.SetSampleFormat(astiav.SampleFormatS16)
	d.resampled.SetSampleRate(d.sampleRate)
	if err := d.resampler.ConvertFrame(d.decoded, d.resampled); err != nil {
		return nil, fmt.Errorf("audio: resampling: %w", err)
	}
	if d.resampled.NbSamples() == 0 {
		return nil, nil
	}
	size, err := d.resampled.SamplesBufferSize(1)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := d.resampled.SamplesCopyToBuffer(buf, 1); err != nil {
		return nil, err
	}
	return buf, nil
}

// flush drops buffered frames by reopening the codec context. go-astiav
// has no avcodec_flush_buffers binding. The old context is kept on failure.
func (d *decoder) flush() error {
	codecCtx, err := openCodecContext(d.codecParams, d.timeBase)
	if err != nil {
		return err
	}
	d.codecCtx.Free()
	d.codecCtx = codecCtx
	d.decoded.Unref()
	return nil
}

func (d *decoder) close() {
	d.decoded.Free()
	d.resampled.Free()
	d.resampler.Free()
	d.codecCtx.Free()
	d.codecParams.Free()
}
