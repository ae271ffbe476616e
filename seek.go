package avplay

// processSeek services the pending seek request. On success both queues are
// drained and a flush marker is queued ahead of any packet read from the new
// position; on failure playback carries on from where it was. The pending
// flag is cleared either way.
//
// preconditions: called from the controller goroutine, which owns s.source
func (d *Decoder) processSeek(s *session) {
	defer s.clearSeek()

	target := s.pendingSeekTarget()
	stream := s.videoStream
	if s.mode == ModeAudio {
		stream = s.audioStream
	}
	timestamp := rescale(target, microsecondBase, stream.TimeBase)

	if err := s.source.SeekKeyframe(stream.Index, timestamp); err != nil {
		d.metrics.seeks.WithLabelValues("failed").Inc()
		pkgLogger.Printf("seek: to %dus (stream %d, ts %d) failed: %v", target, stream.Index, timestamp, err)
		return
	}
	d.metrics.seeks.WithLabelValues("ok").Inc()

	if s.audioOpened.Load() {
		d.audio.EmptyAudioData()
		d.audio.PacketEnqueue(FlushEntry())
	}
	if s.mode == ModeVideo {
		d.videoQueue.Drain()
		d.videoQueue.EnqueueFlush()
		d.metrics.videoQueueDepth.Set(1)
		s.storeVideoClock(0)
	}
}
