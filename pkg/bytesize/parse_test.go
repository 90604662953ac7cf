package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512B", 512},
		{"1KB", 1024},
		{"1kb", 1024},
		{"1K", 1024},
		{"1KiB", 1024},
		{"1MB", 1 << 20},
		{" 1.5 GB ", 3 << 29},
		{"64g", 64 << 30},
		{"2TiB", 2 << 40},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "   ", "MB", "abc", "-1MB", "1XB", "NaN", "9999999TB"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0B", Format(0))
	assert.Equal(t, "999B", Format(999))
	assert.Equal(t, "1KB", Format(1024))
	assert.Equal(t, "1.5KB", Format(1536))
	assert.Equal(t, "64GB", Format(64<<30))
}

func TestParseFormatAgree(t *testing.T) {
	for _, n := range []int64{1 << 20, 3 << 29, 5 << 40} {
		got, err := Parse(Format(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}
