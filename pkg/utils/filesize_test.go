package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * MB, "5.00 MB"},
		{int64(2.75 * GB), "2.75 GB"},
		{3 * TB, "3.00 TB"},
		{-10, "0 B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.bytes))
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KB", 1024},
		{"1.5kb", 1536},
		{"100MB", 100 * MB},
		{"2G", 2 * GB},
		{"1tb", TB},
		{" 10 MB ", 10 * MB},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "10XB", "-5MB"} {
		_, err := ParseSize(input)
		assert.Error(t, err, input)
	}
}
