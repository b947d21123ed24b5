package imaging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igboarchives/harvester/internal/imaging/imagetest"
)

func TestVerifyValidImages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		data   []byte
		format string
	}{
		{name: "item.jpg", data: imagetest.JPEG(16, 9), format: FormatJPEG},
		{name: "item.JPEG", data: imagetest.JPEG(16, 9), format: FormatJPEG},
		{name: "item.png", data: imagetest.PNG(16, 9), format: FormatPNG},
		{name: "item.gif", data: imagetest.GIF(16, 9), format: FormatGIF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			info, err := Verify(bytes.NewReader(tc.data), tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.format, info.Format)
			assert.Equal(t, 16, info.Width)
			assert.Equal(t, 9, info.Height)
			assert.Equal(t, int64(len(tc.data)), info.Size)
		})
	}
}

func TestVerifyRejectsMislabeledPNG(t *testing.T) {
	t.Parallel()

	_, err := Verify(bytes.NewReader(imagetest.PNG(4, 4)), "item_01.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidImage))
}

func TestVerifyRejectsTruncated(t *testing.T) {
	t.Parallel()

	jpg := imagetest.JPEG(32, 32)
	_, err := Verify(bytes.NewReader(jpg[:len(jpg)/2]), "half.jpg")
	require.Error(t, err, "jpeg without end marker")

	png := imagetest.PNG(32, 32)
	_, err = Verify(bytes.NewReader(png[:len(png)-6]), "half.png")
	require.Error(t, err, "png without IEND")

	gif := imagetest.GIF(8, 8)
	_, err = Verify(bytes.NewReader(gif[:len(gif)-1]), "half.gif")
	require.Error(t, err, "gif without trailer")
}

func TestVerifyRejectsCorruptPNGChunk(t *testing.T) {
	t.Parallel()

	png := imagetest.PNG(8, 8)
	corrupt := append([]byte(nil), png...)
	corrupt[len(pngSignature)+8+2] ^= 0xff // inside IHDR data
	_, err := Verify(bytes.NewReader(corrupt), "crc.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crc mismatch")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("<html>not found</html>"), {0xff}} {
		_, err := Verify(bytes.NewReader(data), "x.jpg")
		assert.Error(t, err)
	}
}

func TestVerifyRejectsMislabeledWebP(t *testing.T) {
	t.Parallel()

	head := []byte("RIFF\x10\x00\x00\x00WEBPVP8 ")
	_, err := Verify(bytes.NewReader(head), "x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webp content")
}

func TestInspect(t *testing.T) {
	t.Parallel()

	info, err := Inspect(bytes.NewReader(imagetest.PNG(7, 3)))
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, info.Format)
	assert.Equal(t, 7, info.Width)
	assert.Equal(t, 3, info.Height)

	info, err = Inspect(bytes.NewReader(imagetest.JPEG(5, 2)))
	require.NoError(t, err)
	assert.Equal(t, 5, info.Width)
}
