package avplay

import (
	"errors"
	"io"
)

// runVideo is the body of the video goroutine: it decodes queued packets,
// paces frames against the audio clock, converts them through the filter
// graph and hands them to the listener.
func (d *Decoder) runVideo(s *session) {
	params := s.videoDec.Params()
	for !s.stopped() {
		if s.paused.Load() {
			d.sleep(d.cfg.PausePoll)
			continue
		}

		// polled rather than waited on, so stop and pause stay responsive
		if d.videoQueue.IsEmpty() {
			if s.readFinished.Load() {
				break
			}
			d.sleep(d.cfg.EmptyQueuePoll)
			continue
		}

		entry, ok := d.videoQueue.Dequeue(true)
		if !ok {
			continue
		}
		d.metrics.videoQueueDepth.Set(float64(d.videoQueue.Len()))
		if entry.IsFlush() {
			pkgLogger.Printf("video: flushing decoder after seek")
			s.videoDec.FlushBuffers()
			continue
		}
		d.decodePacket(s, params, entry.Packet())
	}

	d.finishVideo(s)
}

// decodePacket decodes one packet and presents at most one frame. Every
// failure here drops the packet or frame and is never fatal.
func (d *Decoder) decodePacket(s *session, params VideoParams, packet Packet) {
	defer packet.Release()

	if err := s.videoDec.SendPacket(packet); err != nil && !errors.Is(err, ErrAgain) && !errors.Is(err, io.EOF) {
		d.metrics.decodeErrors.Inc()
		d.softLog.Printf("video: send packet failed: %v", err)
		return
	}

	frame, err := s.videoDec.ReceiveFrame()
	if err != nil {
		if !errors.Is(err, ErrAgain) && !errors.Is(err, io.EOF) {
			d.metrics.decodeErrors.Inc()
			d.softLog.Printf("video: receive frame failed: %v", err)
		}
		return
	}
	defer frame.Release()

	pts := s.synchronize(params, frame)
	if s.hasAudio() {
		d.waitForAudio(s, pts)
	}
	if s.stopped() {
		return
	}

	if !d.ensureFilterGraph(s, frame) {
		return
	}

	if err := s.filter.Push(frame); err != nil {
		d.metrics.filterErrors.Inc()
		d.softLog.Printf("video: filter push failed: %v", err)
		return
	}
	picture, err := s.filter.Pull()
	if err != nil {
		d.metrics.filterErrors.Inc()
		d.softLog.Printf("video: filter pull failed: %v", err)
		return
	}
	defer picture.Release()

	data, err := picture.Bytes()
	if err != nil {
		d.metrics.filterErrors.Inc()
		d.softLog.Printf("video: reading filtered picture failed: %v", err)
		return
	}

	// the graph reuses its output buffer on the next pull
	pix := make([]byte, len(data))
	copy(pix, data)
	d.listener.FrameReady(Frame{
		Pix:               pix,
		Width:             picture.Width(),
		Height:            picture.Height(),
		PTS:               pts,
		SampleAspectRatio: s.filterParams.SampleAspectRatio,
	})
	d.metrics.framesPresented.Inc()
}

// ensureFilterGraph rebuilds the filter graph when frame no longer matches
// the size, pixel format or aspect ratio the graph was configured for. It
// returns false if no graph is available for the frame, which is dropped.
func (d *Decoder) ensureFilterGraph(s *session, frame DecodedFrame) bool {
	want := s.filterParams
	if w, h := frame.Width(), frame.Height(); w > 0 && h > 0 {
		want.Width, want.Height = w, h
	}
	if format := frame.PixelFormat(); format != "" {
		want.PixelFormat = format
	}
	if sar := frame.SampleAspectRatio(); sar.Valid() {
		want.SampleAspectRatio = sar
	}
	if s.filter != nil && want == s.filterParams {
		return true
	}

	pkgLogger.Printf("video: frames changed to %dx%d %s, rebuilding filter graph", want.Width, want.Height, want.PixelFormat)
	if s.filter != nil {
		s.filter.Close()
		s.filter = nil
	}
	graph, err := d.buildFilterGraph(want)
	if err != nil {
		d.metrics.filterErrors.Inc()
		d.softLog.Printf("video: %v", err)
		return false
	}
	s.filter = graph
	s.filterParams = want
	d.metrics.filterRebuilds.Inc()
	return true
}

// finishVideo marks decoding as finished and makes the final state
// transition once the read loop has released its resources too.
func (d *Decoder) finishVideo(s *session) {
	s.decodeFinished.Store(true)
	for !s.readFinished.Load() {
		d.sleep(d.cfg.PausePoll)
	}
	pkgLogger.Printf("video: decoder finished")

	if s.controllerStop.Load() {
		d.states.stop()
	} else {
		d.listener.MediaEnded()
		d.states.finish()
	}
}
