/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package writer finalizes a tracing session: header, remaining buffered
// records, and the summary with its method and thread tables.
package writer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mtrace/pkg/buffer"
	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
	"github.com/hyperledger-labs/mtrace/pkg/sink"
)

// Summary carries the session facts reported in the trace's text section.
type Summary struct {
	Format          encoding.Format
	Streaming       bool
	StartTimeUsec   uint64
	ElapsedUsec     uint64
	Overflowed      bool
	ClockOverheadNs uint32
	NumRecords      int
	CountAllocs     bool
	Allocs          host.AllocStats
}

// Text renders the summary section, including the thread and method tables
// from reg.
func (s Summary) Text(reg *registry.Registry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*version\n")
	fmt.Fprintf(&b, "%d\n", s.Format.Version())
	fmt.Fprintf(&b, "data-file-overflow=%t\n", s.Overflowed)
	if s.Format.ThreadCPU {
		if s.Format.Wall {
			fmt.Fprintf(&b, "clock=dual\n")
		} else {
			fmt.Fprintf(&b, "clock=thread-cpu\n")
		}
	} else {
		fmt.Fprintf(&b, "clock=wall\n")
	}
	fmt.Fprintf(&b, "elapsed-time-usec=%d\n", s.ElapsedUsec)
	if !s.Streaming {
		fmt.Fprintf(&b, "num-method-calls=%d\n", s.NumRecords)
	}
	fmt.Fprintf(&b, "clock-call-overhead-nsec=%d\n", s.ClockOverheadNs)
	fmt.Fprintf(&b, "vm=mtrace\n")
	fmt.Fprintf(&b, "pid=%d\n", os.Getpid())
	if s.CountAllocs {
		fmt.Fprintf(&b, "alloc-count=%d\n", s.Allocs.AllocCount)
		fmt.Fprintf(&b, "alloc-size=%d\n", s.Allocs.AllocBytes)
		fmt.Fprintf(&b, "gc-count=%d\n", s.Allocs.GCCount)
	}

	fmt.Fprintf(&b, "*threads\n")
	for _, t := range reg.Threads() {
		fmt.Fprintf(&b, "%d\t%s\n", t.ID, t.Name)
	}
	fmt.Fprintf(&b, "*methods\n")
	for _, m := range reg.Methods() {
		b.WriteString(encoding.MethodLine(m.ID, m.Method))
	}
	fmt.Fprintf(&b, "*end\n")
	return b.String()
}

// WriteHeader encodes the session header directly into a global buffer's
// reserved leading bytes.
func WriteHeader(g *buffer.Global, format encoding.Format, streaming bool, startTimeUsec uint64) {
	encoding.EncodeHeader(g.At(0, encoding.HeaderLength),
		headerVersion(format, streaming), startTimeUsec, uint16(format.RecordSize()))
}

// StreamHeader writes the session header straight to a streaming sink, which
// uses per-thread buffers and therefore never stages the header in a shared
// buffer.
func StreamHeader(w io.Writer, format encoding.Format, startTimeUsec uint64) error {
	var hdr [encoding.HeaderLength]byte
	encoding.EncodeHeader(hdr[:], headerVersion(format, true), startTimeUsec, uint16(format.RecordSize()))
	_, err := w.Write(hdr[:])
	return errors.WithMessage(err, "could not write trace header")
}

func headerVersion(format encoding.Format, streaming bool) uint16 {
	v := format.Version()
	if streaming {
		v |= encoding.StreamingVersionFlag
	}
	return v
}

// FinishBuffered delivers a non-streaming session: the global buffer's header
// and records followed by the summary, written to w.
func FinishBuffered(w io.Writer, g *buffer.Global, summary Summary, reg *registry.Registry) error {
	data := g.Bytes()[:g.Len(summary.Format.RecordSize())]
	if _, err := w.Write(data); err != nil {
		return errors.WithMessage(err, "could not write trace data")
	}
	trailer := encoding.AppendSummaryOp(nil, summary.Text(reg))
	if _, err := w.Write(trailer); err != nil {
		return errors.WithMessage(err, "could not write trace summary")
	}
	return nil
}

// FinishLive assembles the same byte stream as FinishBuffered and publishes it
// over the live transport in one delivery.
func FinishLive(t sink.Transport, g *buffer.Global, summary Summary, reg *registry.Registry) error {
	data := g.Bytes()[:g.Len(summary.Format.RecordSize())]
	out := make([]byte, len(data), len(data)+256)
	copy(out, data)
	out = encoding.AppendSummaryOp(out, summary.Text(reg))
	return errors.WithMessage(t.Publish(out), "could not publish trace")
}

// FinishStreaming terminates a streaming session. The header and records have
// already been delivered incrementally; only the summary remains.
func FinishStreaming(w io.Writer, summary Summary, reg *registry.Registry) error {
	trailer := encoding.AppendSummaryOp(nil, summary.Text(reg))
	if _, err := w.Write(trailer); err != nil {
		return errors.WithMessage(err, "could not write trace summary")
	}
	return nil
}

// NumRecords computes the whole-record count held by a global buffer.
func NumRecords(g *buffer.Global, format encoding.Format) int {
	return (g.Len(format.RecordSize()) - encoding.HeaderLength) / format.RecordSize()
}
