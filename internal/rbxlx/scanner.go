// Package rbxlx streams a scene document through the decompiler: a forward
// scan extracts bytecode-bearing CDATA nodes, submits them, and an assembler
// writes the transformed document in original order.
package rbxlx

import (
	"bytes"
	"errors"
	"io"
)

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"

	readChunkSize = 64 * 1024
)

var ErrUnterminatedCData = errors.New("rbxlx: unterminated CDATA section")

// Event is one forward-only structural event. Raw bytes outside CDATA
// sections are passed through verbatim; for a CDATA section only its inner
// text is carried, the fixed delimiters are implied.
type Event struct {
	IsCData bool
	Raw     []byte
	CData   []byte
}

// Scanner splits a document into raw chunks and CDATA sections without ever
// holding more than one section (plus a read chunk) in memory. It is a
// byte-level splitter on purpose: everything that is not a payload node must
// come out of the pipeline byte-identical, which a re-serializing XML parser
// cannot promise.
type Scanner struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	inCData bool
	eof     bool
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next event, or io.EOF once the document is exhausted.
// The returned slices are owned by the caller.
func (s *Scanner) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	for {
		if s.inCData {
			if idx := bytes.Index(s.buf, []byte(cdataClose)); idx >= 0 {
				content := append([]byte(nil), s.buf[:idx]...)
				s.buf = s.buf[idx+len(cdataClose):]
				s.inCData = false
				return Event{IsCData: true, CData: content}, nil
			}
			if s.eof {
				s.err = ErrUnterminatedCData
				return Event{}, s.err
			}
			if err := s.fill(); err != nil {
				s.err = err
				return Event{}, s.err
			}
			continue
		}

		if idx := bytes.Index(s.buf, []byte(cdataOpen)); idx >= 0 {
			if idx > 0 {
				raw := append([]byte(nil), s.buf[:idx]...)
				s.buf = s.buf[idx:]
				return Event{Raw: raw}, nil
			}
			s.buf = s.buf[len(cdataOpen):]
			s.inCData = true
			continue
		}

		if s.eof {
			if len(s.buf) > 0 {
				raw := s.buf
				s.buf = nil
				return Event{Raw: raw}, nil
			}
			s.err = io.EOF
			return Event{}, s.err
		}

		// keep a tail shorter than the open marker around so a marker split
		// across reads is still found
		if keep := len(cdataOpen) - 1; len(s.buf) > keep {
			raw := append([]byte(nil), s.buf[:len(s.buf)-keep]...)
			s.buf = append(s.buf[:0], s.buf[len(s.buf)-keep:]...)
			return Event{Raw: raw}, nil
		}
		if err := s.fill(); err != nil {
			s.err = err
			return Event{}, s.err
		}
	}
}

func (s *Scanner) fill() error {
	for {
		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			return nil
		}
		if err == io.EOF {
			s.eof = true
			return nil
		}
		if err != nil {
			return err
		}
	}
}
