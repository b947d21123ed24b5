// Package imaging performs structural integrity checks on stored images
// without decoding pixel data.
package imaging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"

	"golang.org/x/image/webp"
)

// Format names reported in Info.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"
)

const (
	tailWindow    = 1024
	maxChunkBytes = 1 << 31
)

var (
	// ErrInvalidImage wraps every structural failure.
	ErrInvalidImage = errors.New("invalid image")

	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegEOI      = []byte{0xff, 0xd9}

	extensionFormats = map[string]string{
		".jpg":  FormatJPEG,
		".jpeg": FormatJPEG,
		".png":  FormatPNG,
		".gif":  FormatGIF,
		".webp": FormatWebP,
	}
)

// Info describes a structurally valid image.
type Info struct {
	Format string
	Width  int
	Height int
	Size   int64
}

// Verify reads r to the end and checks that it holds a complete image whose
// format agrees with the extension of name. A .jpg holding PNG bytes fails.
func Verify(r io.Reader, name string) (Info, error) {
	counter := &countingReader{r: r}
	br := bufio.NewReader(counter)
	format, err := sniff(br)
	if err != nil {
		return Info{}, err
	}
	if want, ok := extensionFormats[strings.ToLower(path.Ext(name))]; ok && want != format {
		return Info{}, fmt.Errorf("%w: %s content behind %s extension", ErrInvalidImage, format, path.Ext(name))
	}

	var info Info
	switch format {
	case FormatPNG:
		info, err = verifyPNG(br)
	default:
		info, err = verifyWithTrailer(br, format)
	}
	if err != nil {
		return Info{}, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}
	info.Format = format
	info.Size = counter.n
	return info, nil
}

// Inspect reads only the image header and returns its dimensions.
func Inspect(r io.Reader) (Info, error) {
	br := bufio.NewReader(r)
	format, err := sniff(br)
	if err != nil {
		return Info{}, err
	}
	cfg, err := decodeConfig(br, format)
	if err != nil {
		return Info{}, err
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func sniff(br *bufio.Reader) (string, error) {
	head, err := br.Peek(12)
	if err != nil && len(head) < 4 {
		return "", fmt.Errorf("%w: too short", ErrInvalidImage)
	}
	switch {
	case bytes.HasPrefix(head, pngSignature):
		return FormatPNG, nil
	case bytes.HasPrefix(head, []byte{0xff, 0xd8, 0xff}):
		return FormatJPEG, nil
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return FormatGIF, nil
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: unrecognized signature", ErrInvalidImage)
	}
}

func decodeConfig(r io.Reader, format string) (image.Config, error) {
	var (
		cfg image.Config
		err error
	)
	switch format {
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case FormatGIF:
		cfg, err = gif.DecodeConfig(r)
	case FormatWebP:
		cfg, err = webp.DecodeConfig(r)
	case FormatPNG:
		cfg, err = png.DecodeConfig(r)
	default:
		return image.Config{}, fmt.Errorf("%w: unsupported format %s", ErrInvalidImage, format)
	}
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: decode %s header: %v", ErrInvalidImage, format, err)
	}
	return cfg, nil
}

// verifyPNG walks every chunk, checking CRCs, until IEND.
func verifyPNG(br *bufio.Reader) (Info, error) {
	if _, err := br.Discard(len(pngSignature)); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	var (
		info   Info
		header [8]byte
		first  = true
	)
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return Info{}, fmt.Errorf("%w: truncated before IEND", ErrInvalidImage)
		}
		length := binary.BigEndian.Uint32(header[:4])
		kind := string(header[4:8])
		if length >= maxChunkBytes {
			return Info{}, fmt.Errorf("%w: chunk %q too large", ErrInvalidImage, kind)
		}
		if first && kind != "IHDR" {
			return Info{}, fmt.Errorf("%w: first chunk is %q", ErrInvalidImage, kind)
		}

		crc := crc32.NewIEEE()
		_, _ = crc.Write(header[4:8])
		var body io.Reader = io.TeeReader(io.LimitReader(br, int64(length)), crc)
		if kind == "IHDR" {
			if length != 13 {
				return Info{}, fmt.Errorf("%w: IHDR length %d", ErrInvalidImage, length)
			}
			ihdr := make([]byte, length)
			if _, err := io.ReadFull(body, ihdr); err != nil {
				return Info{}, fmt.Errorf("%w: short IHDR", ErrInvalidImage)
			}
			info.Width = int(binary.BigEndian.Uint32(ihdr[0:4]))
			info.Height = int(binary.BigEndian.Uint32(ihdr[4:8]))
		} else if n, err := io.Copy(io.Discard, body); err != nil || n != int64(length) {
			return Info{}, fmt.Errorf("%w: truncated %q chunk", ErrInvalidImage, kind)
		}

		var want [4]byte
		if _, err := io.ReadFull(br, want[:]); err != nil {
			return Info{}, fmt.Errorf("%w: missing crc for %q", ErrInvalidImage, kind)
		}
		if binary.BigEndian.Uint32(want[:]) != crc.Sum32() {
			return Info{}, fmt.Errorf("%w: crc mismatch in %q", ErrInvalidImage, kind)
		}
		first = false
		if kind == "IEND" {
			return info, nil
		}
	}
}

// verifyWithTrailer decodes the header then drains the stream, checking the
// format's end marker in the final bytes.
func verifyWithTrailer(br *bufio.Reader, format string) (Info, error) {
	var riffSize uint32
	if format == FormatWebP {
		head, _ := br.Peek(8)
		riffSize = binary.LittleEndian.Uint32(head[4:8])
	}
	tail := &tailReader{r: br, keep: tailWindow}
	cfg, err := decodeConfig(tail, format)
	if err != nil {
		return Info{}, err
	}
	if _, err := io.Copy(io.Discard, tail); err != nil {
		return Info{}, fmt.Errorf("%w: read body: %v", ErrInvalidImage, err)
	}

	switch format {
	case FormatJPEG:
		if !bytes.Contains(tail.buf, jpegEOI) {
			return Info{}, fmt.Errorf("%w: jpeg missing end-of-image marker", ErrInvalidImage)
		}
	case FormatGIF:
		if len(tail.buf) == 0 || tail.buf[len(tail.buf)-1] != 0x3b {
			return Info{}, fmt.Errorf("%w: gif missing trailer", ErrInvalidImage)
		}
	case FormatWebP:
		if tail.total < int64(riffSize)+8 {
			return Info{}, fmt.Errorf("%w: webp truncated", ErrInvalidImage)
		}
	}
	return Info{Width: cfg.Width, Height: cfg.Height}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// tailReader remembers the last keep bytes that passed through it.
type tailReader struct {
	r     io.Reader
	keep  int
	buf   []byte
	total int64
}

func (t *tailReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.total += int64(n)
		t.buf = append(t.buf, p[:n]...)
		if over := len(t.buf) - t.keep; over > 0 {
			t.buf = append(t.buf[:0], t.buf[over:]...)
		}
	}
	return n, err
}
