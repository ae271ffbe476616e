package audio

import (
	"io"
	"math"
	"sync/atomic"
)

// reader feeds one ebitengine player. A new reader is created whenever the
// player is recreated, and closing it makes the old player hit EOF.
//
// Read never blocks: ebitengine holds locks shared with the player methods
// while it runs, so an underrun returns whatever is available, possibly
// nothing, and the player simply asks again.
type reader struct {
	owner    *Subsystem
	leftover []byte
	closed   atomic.Bool
	finished atomic.Bool
}

// Read serves decoded samples. It returns io.EOF once closed, or once the
// queue runs dry after the read loop finished.
func (r *reader) Read(buffer []byte) (int, error) {
	// clamp to previous multiple of 4
	buffer = buffer[:len(buffer)&(math.MaxInt-(bytesPerSample-1))]

	var servedBytes int
	for len(buffer) > 0 {
		if r.closed.Load() {
			return servedBytes, io.EOF
		}
		if len(r.leftover) > 0 {
			copiedBytes := r.copyLeftover(buffer)
			buffer = buffer[copiedBytes:]
			servedBytes += copiedBytes
			continue
		}
		if !r.owner.decodeNext(r) {
			break
		}
	}

	if servedBytes == 0 && r.owner.readFinished.Load() && r.owner.queue.IsEmpty() {
		r.owner.finish(r)
		return 0, io.EOF
	}
	return servedBytes, nil
}

func (r *reader) copyLeftover(buffer []byte) int {
	copiedBytes := copy(buffer, r.leftover)
	if copiedBytes >= len(r.leftover) {
		r.leftover = r.leftover[:0]
	} else {
		newLen := copy(r.leftover, r.leftover[copiedBytes:])
		r.leftover = r.leftover[:newLen]
	}
	return copiedBytes
}
