// Package jsonl reads and writes newline-delimited JSON streams.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Writer encodes one object per line. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
	n   int
}

// NewWriter wraps w. Call Flush before discarding it.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc}
}

// Encode appends v as a single line.
func (w *Writer) Encode(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode line %d: %w", w.n+1, err)
	}
	w.n++
	return nil
}

// WriteRaw appends an already encoded object. A trailing newline is added.
func (w *Writer) WriteRaw(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(bytes.TrimRight(line, "\r\n")); err != nil {
		return fmt.Errorf("write line %d: %w", w.n+1, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write line %d: %w", w.n+1, err)
	}
	w.n++
	return nil
}

// Lines returns how many lines were written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return nil
}

// Reader yields raw lines without a length limit.
type Reader struct {
	br   *bufio.Reader
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next non-blank line and its 1-based line number. It
// returns io.EOF after the last line.
func (r *Reader) Next() ([]byte, int, error) {
	for {
		raw, err := r.br.ReadBytes('\n')
		if len(raw) > 0 {
			r.line++
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) > 0 {
				return trimmed, r.line, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, r.line, io.EOF
			}
			return nil, r.line, fmt.Errorf("read line %d: %w", r.line+1, err)
		}
	}
}
