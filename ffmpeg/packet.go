package ffmpeg

import (
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/erparts/go-avplay"
)

var _ avplay.Packet = (*Packet)(nil)

// Packet owns one demuxed astiav packet until released.
type Packet struct {
	pkt  *astiav.Packet
	once sync.Once
}

func (p *Packet) StreamIndex() int {
	if p.pkt == nil {
		return -1
	}
	return p.pkt.StreamIndex()
}

// AVPacket exposes the underlying packet to decoders in this module.
// It's nil after Release.
func (p *Packet) AVPacket() *astiav.Packet { return p.pkt }

// Release frees the packet. Further calls do nothing.
func (p *Packet) Release() {
	p.once.Do(func() {
		if p.pkt != nil {
			p.pkt.Free()
			p.pkt = nil
		}
	})
}
