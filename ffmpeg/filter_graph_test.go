package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain(t *testing.T) {
	assert.Equal(t, "pp=hb/vb/dr/al,format=pix_fmts=rgba", chain("pp=hb/vb/dr/al", "rgba"))
	assert.Equal(t, "format=pix_fmts=rgba", chain("", "rgba"))
	assert.Equal(t, "hflip", chain("hflip", ""))
	assert.Equal(t, "null", chain("", ""))
}
