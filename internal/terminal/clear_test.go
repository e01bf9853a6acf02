package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinesToClear(t *testing.T) {
	tests := []struct {
		length, width, want int
	}{
		{0, 80, 2},
		{10, 80, 2},
		{80, 80, 2},
		{81, 80, 3},
		{200, 80, 4},
		{10, 0, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, linesToClear(tt.length, tt.width), "length=%d width=%d", tt.length, tt.width)
	}
}

func TestClear(t *testing.T) {
	var buf bytes.Buffer
	Clear(&buf, 100, 80)
	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "\x1b[2K"))
	assert.Equal(t, 2, strings.Count(out, "\x1b[1A"))
	assert.True(t, strings.HasSuffix(out, "\r\x1b[2K"))
}
