package avplay

import "github.com/hajimehoshi/ebiten/v2"

// A utility function to draw a frame into the given viewport, scaling
// as required with [ebiten.FilterLinear] to take as much space as possible
// while preserving the aspect ratio.
//
// If there's extra space in the viewport, the frame will be drawn centered,
// but black bars won't be explicitly drawn, so whatever was on the background
// of the viewport will remain visible.
//
// Common usage:
//
//	frame := videoPlayer.CurrentFrame()
//	avplay.Draw(screen, frame)
func Draw(viewport, frame *ebiten.Image) {
	DrawWithPixelAspect(viewport, frame, 1.0)
}

// Like [Draw](), but for frames whose pixels aren't square, e.g. anamorphic
// DVD content. pixelAspect is the width of a pixel divided by its height;
// see [Frame.SampleAspectRatio].
func DrawWithPixelAspect(viewport, frame *ebiten.Image, pixelAspect float64) {
	if frame == nil {
		return
	}
	geom, filter := CalcProjection(viewport, frame, pixelAspect)
	var opts ebiten.DrawImageOptions
	opts.GeoM = geom
	opts.Filter = filter
	viewport.DrawImage(frame, &opts)
}

// CalcProjection returns the GeoM and recommended ebiten.Filter to project
// the frame into the given viewport. Non-positive pixelAspect values are
// treated as 1. If you don't need the specific parameters, see [Draw]()
// instead.
func CalcProjection(viewport, frame *ebiten.Image, pixelAspect float64) (ebiten.GeoM, ebiten.Filter) {
	if pixelAspect <= 0 {
		pixelAspect = 1.0
	}

	// get frame and viewport sizes
	frameBounds := frame.Bounds()
	viewBounds := viewport.Bounds()
	vwWidth, vwHeight := float64(viewBounds.Dx()), float64(viewBounds.Dy())
	frWidth, frHeight := float64(frameBounds.Dx())*pixelAspect, float64(frameBounds.Dy())

	// prepare variables for translation to viewport origin
	tx, ty := float64(viewBounds.Min.X), float64(viewBounds.Min.Y)

	var geom ebiten.GeoM
	var filter ebiten.Filter = ebiten.FilterLinear
	sf := min(vwWidth/frWidth, vwHeight/frHeight)
	if sf == 1.0 && pixelAspect == 1.0 {
		// pixel perfect, only centering needed
		filter = ebiten.FilterNearest
		geom.Translate(tx+(vwWidth-frWidth)/2, ty+(vwHeight-frHeight)/2)
		return geom, filter
	}

	geom.Scale(sf*pixelAspect, sf)
	geom.Translate(tx+(vwWidth-frWidth*sf)/2, ty+(vwHeight-frHeight*sf)/2)
	return geom, filter
}
