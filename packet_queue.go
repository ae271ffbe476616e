package avplay

import "sync"

// Entry is a queue item: either a real [Packet] or a flush marker.
type Entry struct {
	packet Packet
	flush  bool
}

// PacketEntry wraps a packet for enqueueing.
func PacketEntry(p Packet) Entry { return Entry{packet: p} }

// FlushEntry returns a flush marker. Consumers dequeuing it must reset their
// decoder instead of submitting anything.
func FlushEntry() Entry { return Entry{flush: true} }

// IsFlush reports whether the entry is a flush marker.
func (e Entry) IsFlush() bool { return e.flush }

// Packet returns the wrapped packet, nil for flush markers.
func (e Entry) Packet() Packet { return e.packet }

// Release releases the wrapped packet, if any.
func (e Entry) Release() {
	if e.packet != nil {
		e.packet.Release()
	}
}

// PacketQueue is an unbounded FIFO of entries, meant for exactly one
// producer and one consumer goroutine. Backpressure is the producer's job.
type PacketQueue struct {
	mutex       sync.Mutex
	cond        *sync.Cond
	entries     []Entry
	interrupted bool
}

func NewPacketQueue() *PacketQueue {
	q := &PacketQueue{}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// Enqueue takes ownership of p and appends it. It never blocks.
func (q *PacketQueue) Enqueue(p Packet) { q.Push(PacketEntry(p)) }

// EnqueueFlush appends a flush marker.
func (q *PacketQueue) EnqueueFlush() { q.Push(FlushEntry()) }

// Push appends an entry and wakes one waiting consumer.
func (q *PacketQueue) Push(e Entry) {
	q.mutex.Lock()
	q.entries = append(q.entries, e)
	q.cond.Signal()
	q.mutex.Unlock()
}

// Dequeue pops the oldest entry. With block set it waits for an entry to
// arrive; it also returns false if [PacketQueue.Interrupt] is called while
// waiting. Without block it returns false immediately on an empty queue.
func (q *PacketQueue) Dequeue(block bool) (Entry, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.entries) == 0 {
		if !block {
			return Entry{}, false
		}
		if q.interrupted {
			q.interrupted = false
			return Entry{}, false
		}
		q.cond.Wait()
	}

	e := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return e, true
}

// Drain releases every buffered entry. A consumer blocked in Dequeue stays
// blocked; pair with [PacketQueue.EnqueueFlush] or [PacketQueue.Interrupt].
func (q *PacketQueue) Drain() {
	q.mutex.Lock()
	entries := q.entries
	q.entries = nil
	q.interrupted = false
	q.mutex.Unlock()

	for _, e := range entries {
		e.Release()
	}
}

// Interrupt wakes a consumer blocked in Dequeue, which then returns false.
// If nobody is waiting, the next blocking Dequeue on an empty queue returns
// false once.
func (q *PacketQueue) Interrupt() {
	q.mutex.Lock()
	q.interrupted = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// Len returns a snapshot of the number of buffered entries.
func (q *PacketQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries)
}

func (q *PacketQueue) IsEmpty() bool { return q.Len() == 0 }
