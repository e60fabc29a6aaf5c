/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package encoding

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Header is the decoded session header.
type Header struct {
	Version       uint16
	Streaming     bool
	DataOffset    uint16
	StartTimeUsec uint64
	RecordSize    uint16
}

// Format returns the record layout implied by the header. A single-clock
// trace does not say which clock was recorded; the decoder treats the one
// delta field as the thread-cpu slot, which is where either clock's delta is
// stored.
func (h Header) Format() Format {
	if h.Version >= VersionDualClock {
		return Format{ThreadCPU: true, Wall: true}
	}
	return Format{ThreadCPU: true}
}

// EventKind discriminates the decoded stream elements.
type EventKind int

const (
	KindRecord EventKind = iota
	KindMethodDecl
	KindThreadDecl
	KindSummary
)

// Event is one decoded element of a trace stream.
type Event struct {
	Kind EventKind

	// Record is set for KindRecord.
	Record Record

	// MethodLine is set for KindMethodDecl.
	MethodLine string

	// ThreadID and ThreadName are set for KindThreadDecl.
	ThreadID   uint16
	ThreadName string

	// Summary is set for KindSummary, the final element of a trace.
	Summary string
}

// Decoder reads back a trace stream. It is the read side used by tooling and
// tests; the engine itself never decodes its own output.
type Decoder struct {
	source *bufio.Reader
	header Header
	format Format
	done   bool
}

// NewDecoder parses the session header and prepares to decode the records
// that follow.
func NewDecoder(source io.Reader) (*Decoder, error) {
	r := bufio.NewReader(source)

	var hdr [HeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.WithMessage(err, "could not read trace header")
	}
	if binary.LittleEndian.Uint32(hdr[:]) != Magic {
		return nil, errors.Errorf("bad magic value %#x", binary.LittleEndian.Uint32(hdr[:]))
	}

	rawVersion := binary.LittleEndian.Uint16(hdr[4:])
	h := Header{
		Version:       rawVersion &^ StreamingVersionFlag,
		Streaming:     rawVersion&StreamingVersionFlag != 0,
		DataOffset:    binary.LittleEndian.Uint16(hdr[6:]),
		StartTimeUsec: binary.LittleEndian.Uint64(hdr[8:]),
		RecordSize:    binary.LittleEndian.Uint16(hdr[16:]),
	}
	if h.Version != VersionSingleClock && h.Version != VersionDualClock {
		return nil, errors.Errorf("unsupported trace version %d", h.Version)
	}
	if h.RecordSize == 0 {
		// Old producers omit the field; fall back to the width the version
		// implies.
		h.RecordSize = uint16(h.Format().RecordSize())
	}

	return &Decoder{
		source: r,
		header: h,
		format: h.Format(),
	}, nil
}

// Header returns the decoded session header.
func (d *Decoder) Header() Header {
	return d.header
}

// Next returns the next element of the stream. After the summary element has
// been returned, Next returns io.EOF.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}

	var lead [2]byte
	if _, err := io.ReadFull(d.source, lead[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// A trace cut off before its summary (e.g. an aborted streaming
			// session) simply ends.
			d.done = true
			return Event{}, io.EOF
		}
		return Event{}, errors.WithMessage(err, "could not read record")
	}

	tid := binary.LittleEndian.Uint16(lead[:])
	if tid != SentinelThreadID {
		rest := make([]byte, int(d.header.RecordSize)-2)
		if _, err := io.ReadFull(d.source, rest); err != nil {
			return Event{}, errors.WithMessage(err, "truncated record")
		}
		full := append(lead[:], rest...)
		return Event{Kind: KindRecord, Record: d.format.DecodeRecord(full)}, nil
	}

	op, err := d.source.ReadByte()
	if err != nil {
		return Event{}, errors.WithMessage(err, "could not read metadata op")
	}

	switch op {
	case OpNewMethod:
		var lenBuf [2]byte
		if _, err := io.ReadFull(d.source, lenBuf[:]); err != nil {
			return Event{}, errors.WithMessage(err, "truncated method declaration")
		}
		line := make([]byte, binary.LittleEndian.Uint16(lenBuf[:]))
		if _, err := io.ReadFull(d.source, line); err != nil {
			return Event{}, errors.WithMessage(err, "truncated method declaration")
		}
		return Event{Kind: KindMethodDecl, MethodLine: string(line)}, nil

	case OpNewThread:
		var buf [4]byte
		if _, err := io.ReadFull(d.source, buf[:]); err != nil {
			return Event{}, errors.WithMessage(err, "truncated thread declaration")
		}
		name := make([]byte, binary.LittleEndian.Uint16(buf[2:]))
		if _, err := io.ReadFull(d.source, name); err != nil {
			return Event{}, errors.WithMessage(err, "truncated thread declaration")
		}
		return Event{
			Kind:       KindThreadDecl,
			ThreadID:   binary.LittleEndian.Uint16(buf[:]),
			ThreadName: string(name),
		}, nil

	case OpSummary:
		var lenBuf [4]byte
		if _, err := io.ReadFull(d.source, lenBuf[:]); err != nil {
			return Event{}, errors.WithMessage(err, "truncated summary")
		}
		text := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(d.source, text); err != nil {
			return Event{}, errors.WithMessage(err, "truncated summary")
		}
		d.done = true
		return Event{Kind: KindSummary, Summary: string(text)}, nil
	}

	return Event{}, errors.Errorf("unknown metadata op %d", op)
}
