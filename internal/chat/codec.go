package chat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Encoder writes events as newline-delimited JSON.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func (e *Encoder) Encode(ev Event) error {
	b, err := MarshalEvent(ev)
	if err != nil {
		return err
	}
	return e.writeLine(b)
}

// EncodeError writes a terminal error record.
func (e *Encoder) EncodeError(msg string) error {
	b, err := MarshalError(msg)
	if err != nil {
		return err
	}
	return e.writeLine(b)
}

func (e *Encoder) writeLine(b []byte) error {
	b = append(b, '\n')
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited events. Blank lines are skipped.
type Decoder struct {
	s *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 10*1024*1024)
	return &Decoder{s: s}
}

// Decode returns the next event, or io.EOF once the stream is exhausted.
func (d *Decoder) Decode() (Event, error) {
	for d.s.Scan() {
		line := bytes.TrimSpace(d.s.Bytes())
		if len(line) == 0 {
			continue
		}
		return UnmarshalEvent(line)
	}
	if err := d.s.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return nil, io.EOF
}
