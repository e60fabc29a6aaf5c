/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package encoding implements the binary trace format.
//
// A trace is a 32-byte header followed by fixed-width records and terminated
// by a text summary. All integers are little-endian.
//
//	header:
//	    u4  magic ("SLOW")
//	    u2  version (2 = single clock, 3 = dual clock; 0xF0 set for streaming)
//	    u2  offset to the first record
//	    u8  session start time, microseconds
//	    u2  record size in bytes
//	    ..  zero padding to 32 bytes
//
//	record:
//	    u2  thread id
//	    u4  method id << 2 | action
//	    u4  thread-cpu time delta, microseconds
//	    u4  wall time delta, microseconds (dual clock only)
//
// Streaming output interleaves metadata records with trace records. A metadata
// record starts with the reserved thread id 0xFFFF followed by an op byte:
// a method declaration (u2 length, method line text), a thread declaration
// (u2 thread id, u2 length, name text), or the trace summary (u4 length,
// summary text). Every trace, streaming or not, ends with the summary op.
package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger-labs/mtrace/pkg/host"
)

const (
	// Magic identifies a trace stream ("SLOW" in little-endian order).
	Magic uint32 = 0x574f4c53

	// HeaderLength is the size of the session header in bytes, and also the
	// offset of the first record.
	HeaderLength = 32

	VersionSingleClock uint16 = 2
	VersionDualClock   uint16 = 3

	// StreamingVersionFlag is set in the header's version field when the
	// trace was produced by continuous per-thread flushing.
	StreamingVersionFlag uint16 = 0xF0

	RecordSizeSingleClock = 10
	RecordSizeDualClock   = 14

	// SentinelThreadID introduces a metadata record. It is never assigned to
	// a producer thread.
	SentinelThreadID uint16 = 0xFFFF

	OpNewMethod uint8 = 1
	OpNewThread uint8 = 2
	OpSummary   uint8 = 3

	// ActionBits is the number of low bits of the method word holding the
	// action; the method id occupies the rest.
	ActionBits = 2

	actionMask = 0x03
)

// Action distinguishes the three record-producing program events.
type Action uint8

const (
	ActionEnter  Action = 0x00
	ActionExit   Action = 0x01
	ActionUnwind Action = 0x02
)

func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "enter"
	case ActionExit:
		return "exit"
	case ActionUnwind:
		return "unwind"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Format captures the per-session encoding parameters derived from the clock
// source selection.
type Format struct {
	ThreadCPU bool
	Wall      bool
}

// Version returns the trace format version for this clock selection.
func (f Format) Version() uint16 {
	if f.ThreadCPU && f.Wall {
		return VersionDualClock
	}
	return VersionSingleClock
}

// RecordSize returns the fixed encoded size of one record in bytes.
func (f Format) RecordSize() int {
	if f.ThreadCPU && f.Wall {
		return RecordSizeDualClock
	}
	return RecordSizeSingleClock
}

// Record is the atomic unit written to a buffer.
type Record struct {
	ThreadID    uint16
	MethodID    uint32
	Action      Action
	ThreadDelta uint32
	WallDelta   uint32
}

// EncodeRecord writes r into dst, which must be at least f.RecordSize() bytes.
func (f Format) EncodeRecord(dst []byte, r Record) {
	binary.LittleEndian.PutUint16(dst, r.ThreadID)
	binary.LittleEndian.PutUint32(dst[2:], r.MethodID<<ActionBits|uint32(r.Action))
	next := 6
	if f.ThreadCPU {
		binary.LittleEndian.PutUint32(dst[next:], r.ThreadDelta)
		next += 4
	}
	if f.Wall {
		binary.LittleEndian.PutUint32(dst[next:], r.WallDelta)
	}
}

// DecodeRecord reads one record from src.
func (f Format) DecodeRecord(src []byte) Record {
	word := binary.LittleEndian.Uint32(src[2:])
	r := Record{
		ThreadID: binary.LittleEndian.Uint16(src),
		MethodID: word >> ActionBits,
		Action:   Action(word & actionMask),
	}
	next := 6
	if f.ThreadCPU {
		r.ThreadDelta = binary.LittleEndian.Uint32(src[next:])
		next += 4
	}
	if f.Wall {
		r.WallDelta = binary.LittleEndian.Uint32(src[next:])
	}
	return r
}

// EncodeHeader writes the 32-byte session header into dst.
func EncodeHeader(dst []byte, version uint16, startTimeUsec uint64, recordSize uint16) {
	for i := 0; i < HeaderLength; i++ {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst, Magic)
	binary.LittleEndian.PutUint16(dst[4:], version)
	binary.LittleEndian.PutUint16(dst[6:], HeaderLength)
	binary.LittleEndian.PutUint64(dst[8:], startTimeUsec)
	binary.LittleEndian.PutUint16(dst[16:], recordSize)
}

// AppendMethodOp appends a method-declaration metadata record to dst.
// The method line is the same line the summary's method table uses.
func AppendMethodOp(dst []byte, line string) []byte {
	var hdr [5]byte
	binary.LittleEndian.PutUint16(hdr[:], SentinelThreadID)
	hdr[2] = OpNewMethod
	binary.LittleEndian.PutUint16(hdr[3:], uint16(len(line)))
	dst = append(dst, hdr[:]...)
	return append(dst, line...)
}

// AppendThreadOp appends a thread-declaration metadata record to dst.
func AppendThreadOp(dst []byte, threadID uint16, name string) []byte {
	var hdr [7]byte
	binary.LittleEndian.PutUint16(hdr[:], SentinelThreadID)
	hdr[2] = OpNewThread
	binary.LittleEndian.PutUint16(hdr[3:], threadID)
	binary.LittleEndian.PutUint16(hdr[5:], uint16(len(name)))
	dst = append(dst, hdr[:]...)
	return append(dst, name...)
}

// AppendSummaryOp appends the summary metadata record that terminates every
// trace.
func AppendSummaryOp(dst []byte, summary string) []byte {
	var hdr [7]byte
	binary.LittleEndian.PutUint16(hdr[:], SentinelThreadID)
	hdr[2] = OpSummary
	binary.LittleEndian.PutUint32(hdr[3:], uint32(len(summary)))
	dst = append(dst, hdr[:]...)
	return append(dst, summary...)
}

// MethodLine formats one entry of the method table: the id shifted into record
// position, then class, name, signature and source file, tab separated.
func MethodLine(id uint32, m host.Method) string {
	return fmt.Sprintf("%#x\t%s\t%s\t%s\t%s\n",
		id<<ActionBits, m.Class(), m.Name(), m.Signature(), m.SourceFile())
}
