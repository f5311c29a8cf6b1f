package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCharset(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		charset string
		want    string
	}{
		{"utf8 passthrough", []byte("caf\xc3\xa9"), "", "café"},
		{"utf8 bom stripped", []byte("\xef\xbb\xbfrt,ok"), "UTF-8", "rt,ok"},
		{"windows-1252", []byte("caf\xe9"), "windows-1252", "café"},
		{"latin1 label", []byte("na\xefve"), "ISO-8859-1", "naïve"},
		{"utf-16le", []byte{'r', 0, 't', 0}, "utf-16le", "rt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCharset(tt.raw, tt.charset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCharset_Unsupported(t *testing.T) {
	_, err := DecodeCharset([]byte("x"), "klingon-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}

func TestDecodeCharset_InvalidUTF8Replaced(t *testing.T) {
	got, err := DecodeCharset([]byte("a\xffb"), "")
	require.NoError(t, err)
	assert.Equal(t, "a�b", got)
}
