package jsonl

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterOneObjectPerLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Encode(map[string]string{"title": "Mbari <house> & shrine"}))
	require.NoError(t, w.WriteRaw([]byte(`{"id":"x"}`+"\n")))
	require.NoError(t, w.Flush())

	assert.Equal(t, "{\"title\":\"Mbari <house> & shrine\"}\n{\"id\":\"x\"}\n", buf.String())
	assert.Equal(t, 2, w.Lines())
}

func TestReaderSkipsBlankLinesAndHandlesMissingNewline(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("{\"a\":1}\n\n  \n{\"b\":2}"))
	line, n, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(line))
	assert.Equal(t, 1, n)

	line, n, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(line))
	assert.Equal(t, 4, n)

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderLongLines(t *testing.T) {
	t.Parallel()

	long := `{"raw_content":"` + strings.Repeat("ọ", 200000) + `"}`
	r := NewReader(strings.NewReader(long + "\n"))
	line, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, long, string(line))
}
