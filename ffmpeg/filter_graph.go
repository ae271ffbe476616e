package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/erparts/go-avplay"
)

var _ avplay.FilterGraph = (*FilterGraph)(nil)

// FilterGraph runs decoded frames through "buffer -> description ->
// format -> buffersink".
type FilterGraph struct {
	graph       *astiav.FilterGraph
	srcCtx      *astiav.BuffersrcFilterContext
	sinkCtx     *astiav.BuffersinkFilterContext
	filtered    *astiav.Frame
	description string
}

// NewFilterGraph builds and configures a graph for frames described by
// params. An empty description only converts to pixelFormat.
func NewFilterGraph(params avplay.VideoParams, description, pixelFormat string) (*FilterGraph, error) {
	if params.Width <= 0 || params.Height <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %dx%d", params.Width, params.Height)
	}

	g := &FilterGraph{graph: astiav.AllocFilterGraph()}
	if g.graph == nil {
		return nil, errors.New("ffmpeg: allocating filter graph failed")
	}
	if err := g.build(params, description, pixelFormat); err != nil {
		g.Close()
		return nil, err
	}
	g.filtered = astiav.AllocFrame()
	return g, nil
}

func (g *FilterGraph) build(params avplay.VideoParams, description, pixelFormat string) error {
	buffersrc := astiav.FindFilterByName("buffer")
	buffersink := astiav.FindFilterByName("buffersink")
	if buffersrc == nil || buffersink == nil {
		return errors.New("ffmpeg: buffer filters not available")
	}

	var err error
	if g.srcCtx, err = g.graph.NewBuffersrcFilterContext(buffersrc, "in"); err != nil {
		return fmt.Errorf("ffmpeg: creating buffersrc: %w", err)
	}
	srcParams := astiav.AllocBuffersrcFilterContextParameters()
	defer srcParams.Free()
	srcParams.SetWidth(params.Width)
	srcParams.SetHeight(params.Height)
	srcParams.SetPixelFormat(astiav.FindPixelFormatByName(params.PixelFormat))
	srcParams.SetTimeBase(astiavRational(params.TimeBase))
	if params.SampleAspectRatio.Valid() {
		srcParams.SetSampleAspectRatio(astiavRational(params.SampleAspectRatio))
	}
	if err = g.srcCtx.SetParameters(srcParams); err != nil {
		return fmt.Errorf("ffmpeg: setting buffersrc parameters: %w", err)
	}
	if err = g.srcCtx.Initialize(nil); err != nil {
		return fmt.Errorf("ffmpeg: initializing buffersrc: %w", err)
	}

	if g.sinkCtx, err = g.graph.NewBuffersinkFilterContext(buffersink, "out"); err != nil {
		return fmt.Errorf("ffmpeg: creating buffersink: %w", err)
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(g.srcCtx.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(g.sinkCtx.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	g.description = chain(description, pixelFormat)
	if err = g.graph.Parse(g.description, inputs, outputs); err != nil {
		return fmt.Errorf("ffmpeg: parsing %q: %w", g.description, err)
	}
	if err = g.graph.Configure(); err != nil {
		return fmt.Errorf("ffmpeg: configuring %q: %w", g.description, err)
	}
	return nil
}

// chain appends the sink pixel format conversion to description.
func chain(description, pixelFormat string) string {
	if pixelFormat == "" {
		if description == "" {
			return "null"
		}
		return description
	}
	format := "format=pix_fmts=" + pixelFormat
	if description == "" {
		return format
	}
	return description + "," + format
}

// Description returns the filter chain the graph was configured with.
func (g *FilterGraph) Description() string { return g.description }

func (g *FilterGraph) Push(frame avplay.DecodedFrame) error {
	f, ok := frame.(*Frame)
	if !ok || f.frame == nil {
		return fmt.Errorf("ffmpeg: unexpected frame %T", frame)
	}
	return mapError(g.srcCtx.AddFrame(f.frame, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)))
}

func (g *FilterGraph) Pull() (avplay.Picture, error) {
	g.filtered.Unref()
	if err := g.sinkCtx.GetFrame(g.filtered, astiav.NewBuffersinkFlags()); err != nil {
		return nil, mapError(err)
	}
	return &picture{frame: g.filtered}, nil
}

func (g *FilterGraph) Close() {
	if g.filtered != nil {
		g.filtered.Free()
		g.filtered = nil
	}
	if g.graph != nil {
		g.graph.Free()
		g.graph = nil
	}
}

// picture borrows the graph's output frame until the next Pull.
type picture struct {
	frame *astiav.Frame
}

// Bytes returns the picture tightly packed, no row padding.
func (p *picture) Bytes() ([]byte, error) {
	size, err := p.frame.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: image buffer size: %w", err)
	}
	buf := make([]byte, size)
	if _, err := p.frame.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("ffmpeg: copying image: %w", err)
	}
	return buf, nil
}

func (p *picture) Width() int  { return p.frame.Width() }
func (p *picture) Height() int { return p.frame.Height() }

func (p *picture) Release() { p.frame.Unref() }
