package avplay

import "time"

// synchronize returns the presentation time of a frame in seconds and
// advances the predicted video clock by one frame interval, stretched by
// half an interval per repeated field. Frames without a timestamp take the
// predicted clock.
//
// preconditions: called from the video goroutine
func (s *session) synchronize(params VideoParams, frame DecodedFrame) float64 {
	var pts float64
	if raw, ok := frame.PTS(); ok {
		pts = float64(raw) * params.TimeBase.Float64()
	} else {
		pts = s.loadVideoClock()
	}

	interval := params.FrameInterval
	if interval <= 0 {
		interval = params.TimeBase.Float64()
	}
	interval += float64(frame.RepeatFields()) * interval * 0.5
	s.storeVideoClock(pts + interval)
	return pts
}

// waitForAudio blocks until the audio clock reaches pts, sleeping at most
// cfg.MaxSyncStep at a time. It gives up early on stop or pause, and once
// reading has finished and the audio clock has stopped moving for
// cfg.AudioStallTimeout.
func (d *Decoder) waitForAudio(s *session, pts float64) {
	lastClock := -1.0
	var stalledFor time.Duration
	for {
		if s.stopped() || s.paused.Load() {
			return
		}

		audioClock := d.audio.AudioClock()
		if pts <= audioClock {
			return
		}

		if audioClock == lastClock && s.readFinished.Load() {
			if stalledFor >= d.cfg.AudioStallTimeout {
				return
			}
		} else {
			stalledFor = 0
			lastClock = audioClock
		}

		delay := time.Duration((pts - audioClock) * float64(time.Second))
		if delay > d.cfg.MaxSyncStep {
			delay = d.cfg.MaxSyncStep
		}
		if delay <= 0 {
			// below the clock resolution, still yield
			delay = time.Microsecond
		}
		d.sleep(delay)
		stalledFor += delay
	}
}
