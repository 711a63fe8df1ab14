package imageinput

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"copydesk/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00}

func TestConvertDetectsAndEncodes(t *testing.T) {
	img, err := Convert(bytes.NewReader(pngHeader), "", 1024)
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), img.Base64)
}

func TestConvertPrefersDeclaredImageType(t *testing.T) {
	img, err := Convert(bytes.NewReader(jpegHeader), "image/JPEG; charset=binary", 1024)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	img, err = Convert(bytes.NewReader(jpegHeader), "application/octet-stream", 1024)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestConvertRejects(t *testing.T) {
	cases := map[string]struct {
		data []byte
		max  int64
	}{
		"empty":      {data: nil, max: 1024},
		"not image":  {data: []byte("%PDF-1.7 this is a document"), max: 1024},
		"too large":  {data: pngHeader, max: 4},
		"plain text": {data: []byte("The cow eat grass."), max: 1024},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Convert(bytes.NewReader(tc.data), "image/png", tc.max)
			require.ErrorIs(t, err, analysis.ErrFileConversion)
			assert.True(t, IsConversionError(err))
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	img, err := Decode(encoded, "", 1024)
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), img.Base64)
}

func TestDecodeURLSafeBase64(t *testing.T) {
	img, err := Decode(base64.URLEncoding.EncodeToString(jpegHeader), "", 1024)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"!!!not-base64!!!", "data:image/png;base64", "", strings.Repeat("A", 4096)} {
		_, err := Decode(in, "", 64)
		require.ErrorIs(t, err, analysis.ErrFileConversion, in)
	}
}
