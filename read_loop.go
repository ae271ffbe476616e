package avplay

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// readResult tells why the read loop returned.
type readResult uint8

const (
	readStopped readResult = iota
	readEndOfStream
)

// runController is the body of the controller goroutine: it opens the
// session, spawns the video goroutine and runs the read loop until end of
// stream or stop.
func (d *Decoder) runController(s *session, workers *errgroup.Group) {
	if err := d.openSession(s); err != nil {
		pkgLogger.Printf("read loop: %v", err)
		d.closeSession(s)
		s.readFinished.Store(true)
		d.listener.SessionError(err)
		d.states.stop()
		return
	}

	if s.mode == ModeVideo {
		s.decodeFinished.Store(false)
		workers.Go(func() error {
			d.runVideo(s)
			return nil
		})
	}
	d.states.play()

	for {
		if d.readLoop(s) == readStopped || s.mode != ModeAudio {
			break
		}
		// audio keeps draining after the last read, seeking is still possible
		if !d.idleUntilSeek(s) {
			break
		}
		s.readFinished.Store(false)
	}

	d.teardown(s)
}

// openSession opens the source, selects streams and prepares the audio
// subsystem and, in video mode, the video decoder and filter graph.
func (d *Decoder) openSession(s *session) error {
	source, err := d.backend.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrOpenFailure, s.path, err)
	}
	s.source = source
	s.realtime = d.cfg.isRealtime(source.FormatName(), s.path)

	// first stream found of each type
	for _, stream := range source.Streams() {
		switch {
		case stream.Type == MediaTypeVideo && s.videoIndex < 0:
			s.videoIndex = stream.Index
			s.videoStream = stream
		case stream.Type == MediaTypeAudio && s.audioIndex < 0:
			s.audioIndex = stream.Index
			s.audioStream = stream
		case stream.Type == MediaTypeSubtitle && s.subtitleIndex < 0:
			s.subtitleIndex = stream.Index
		}
	}
	if s.mode == ModeVideo && s.videoIndex < 0 {
		return fmt.Errorf("%w: no video stream in %q", ErrNoStreamFound, s.path)
	}
	if s.mode == ModeAudio && s.audioIndex < 0 {
		return fmt.Errorf("%w: no audio stream in %q", ErrNoStreamFound, s.path)
	}

	if s.realtime {
		s.duration = 0
	} else {
		s.duration = source.Duration()
	}
	d.listener.DurationReported(s.duration)

	if s.hasAudio() {
		if err := d.audio.OpenAudio(source, s.audioIndex); err != nil {
			return fmt.Errorf("%w: %w", ErrAudioInit, err)
		}
		s.audioOpened.Store(true)
	}

	if s.mode == ModeVideo {
		s.videoDec, err = source.OpenVideoDecoder(s.videoIndex)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecoderInit, err)
		}
		s.filterParams = s.videoDec.Params()
		s.filter, err = d.buildFilterGraph(s.filterParams)
		if err != nil {
			return err
		}
	}
	return nil
}

// buildFilterGraph builds a fresh graph for params. If the configured
// filter chain can't be built (e.g. postproc missing from the ffmpeg
// build), it retries with a direct source to sink link.
func (d *Decoder) buildFilterGraph(params VideoParams) (FilterGraph, error) {
	graph, err := d.backend.NewFilterGraph(params, d.cfg.FilterDescription, d.cfg.OutputPixelFormat)
	if err == nil {
		return graph, nil
	}
	if d.cfg.FilterDescription == "" {
		return nil, fmt.Errorf("%w: %w", ErrFilterGraph, err)
	}
	pkgLogger.Printf("read loop: filter chain %q unavailable (%v), converting without it", d.cfg.FilterDescription, err)
	graph, err = d.backend.NewFilterGraph(params, "", d.cfg.OutputPixelFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilterGraph, err)
	}
	return graph, nil
}

// readLoop reads packets and dispatches them until stop or end of stream.
// A pending seek is serviced at the top of each iteration.
func (d *Decoder) readLoop(s *session) readResult {
	sourcePaused := false
	for {
		if s.stopped() {
			return readStopped
		}

		if paused := s.paused.Load(); paused != sourcePaused {
			d.setSourcePaused(s, paused)
			sourcePaused = paused
		}
		if sourcePaused {
			d.sleep(d.cfg.PausePoll)
			continue
		}

		if s.seekPending.Load() {
			d.processSeek(s)
		}

		if s.mode == ModeVideo && d.videoQueue.Len() > d.cfg.BackpressureThreshold {
			d.metrics.backpressureWaits.Inc()
			d.sleep(d.cfg.PausePoll)
			continue
		}

		packet, err := s.source.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				pkgLogger.Printf("read loop: read failed, treating as end of stream: %v", err)
			} else {
				pkgLogger.Printf("read loop: end of stream")
			}
			s.readFinished.Store(true)
			if s.audioOpened.Load() {
				d.audio.ReadFinished()
			}
			d.listener.ReadFinished()
			return readEndOfStream
		}
		d.dispatch(s, packet)
	}
}

// dispatch routes a packet to the video queue or the audio subsystem.
// Subtitle and unrecognized packets are released right away.
func (d *Decoder) dispatch(s *session, packet Packet) {
	switch index := packet.StreamIndex(); {
	case s.mode == ModeVideo && index == s.videoIndex:
		d.metrics.packetsRead.WithLabelValues(MediaTypeVideo.String()).Inc()
		d.videoQueue.Enqueue(packet)
		d.metrics.videoQueueDepth.Set(float64(d.videoQueue.Len()))
	case s.hasAudio() && index == s.audioIndex:
		d.metrics.packetsRead.WithLabelValues(MediaTypeAudio.String()).Inc()
		d.audio.PacketEnqueue(PacketEntry(packet))
	default:
		d.metrics.packetsDropped.Inc()
		packet.Release()
	}
}

// preconditions: called from the controller goroutine, which owns s.source
func (d *Decoder) setSourcePaused(s *session, paused bool) {
	var err error
	if paused {
		err = s.source.PauseRead()
	} else {
		err = s.source.ResumeRead()
	}
	if err != nil {
		pkgLogger.Printf("read loop: source pause=%t failed: %v", paused, err)
	}
}

// idleUntilSeek waits after end of stream in audio mode. It returns true
// when a seek is pending, false once the session is stopped.
func (d *Decoder) idleUntilSeek(s *session) bool {
	for !s.stopped() {
		if s.seekPending.Load() {
			return true
		}
		d.sleep(d.cfg.IdlePoll)
	}
	return false
}

// teardown releases the session resources once the read loop is done.
func (d *Decoder) teardown(s *session) {
	if s.mode == ModeVideo {
		// the video goroutine uses the decoder and filter graph until it exits
		for !s.decodeFinished.Load() {
			d.sleep(d.cfg.PausePoll)
		}
	}
	d.closeSession(s)
	s.readFinished.Store(true)
	pkgLogger.Printf("read loop: session %q finished", s.path)

	// in video mode the video goroutine makes the final transition
	if s.mode == ModeAudio {
		if !s.controllerStop.Load() {
			d.listener.MediaEnded()
		}
		d.states.stop()
	}
}

// closeSession releases whatever openSession managed to set up.
func (d *Decoder) closeSession(s *session) {
	if s.audioOpened.Load() {
		d.audio.CloseAudio()
		s.audioOpened.Store(false)
	}
	if s.filter != nil {
		s.filter.Close()
		s.filter = nil
	}
	if s.videoDec != nil {
		s.videoDec.Close()
		s.videoDec = nil
	}
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			pkgLogger.Printf("read loop: closing source: %v", err)
		}
		s.source = nil
	}
}
