package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in     string
		w, h   int
		wantOK bool
	}{
		{"1280x720", 1280, 720, true},
		{"1920X1080", 1920, 1080, true},
		{"640x480", 640, 480, true},
		{"720p", 0, 0, false},
		{"x720", 0, 0, false},
		{"1280x", 0, 0, false},
		{"-1280x720", 0, 0, false},
		{"0x0", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, ok := parseResolution(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestBaseNoExt(t *testing.T) {
	assert.Equal(t, "video", baseNoExt("/tmp/video.mp4"))
	assert.Equal(t, "archive.tar", baseNoExt("archive.tar.gz"))
	assert.Equal(t, "noext", baseNoExt("/tmp/noext"))
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c | d", lastLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a | b", lastLines("a\nb\n", 5))
	assert.Equal(t, "only", lastLines("only", 3))
}
