/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sink provides the destinations a tracing session can deliver its
// byte stream to: a file, an in-process live transport, or a WAL-segmented
// streaming store.
package sink

import (
	"os"

	"github.com/pkg/errors"
)

// Transport is an in-process channel delivering a finished trace to an
// attached debugger or profiler instead of a file.
type Transport interface {
	Publish(data []byte) error
}

// ChannelTransport is a Transport backed by a Go channel. The consumer side
// receives the complete trace byte stream as a single message.
type ChannelTransport struct {
	C chan []byte
}

// NewChannelTransport creates a transport whose channel buffers up to capacity
// published traces.
func NewChannelTransport(capacity int) *ChannelTransport {
	return &ChannelTransport{C: make(chan []byte, capacity)}
}

// Publish delivers data to the consumer. It fails rather than blocks when the
// consumer has fallen behind, so session teardown can always complete.
func (t *ChannelTransport) Publish(data []byte) error {
	select {
	case t.C <- data:
		return nil
	default:
		return errors.New("live transport consumer not ready, trace discarded")
	}
}

// FileSink writes the trace to a regular file.
type FileSink struct {
	file *os.File
}

// CreateFile opens (truncating) the trace output file.
func CreateFile(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "could not create trace output file %s", path)
	}
	return &FileSink{file: f}, nil
}

// NewFileSink wraps an already-open file or descriptor-backed file.
func NewFileSink(f *os.File) *FileSink {
	return &FileSink{file: f}
}

func (fs *FileSink) Write(p []byte) (int, error) {
	return fs.file.Write(p)
}

// Close flushes and closes the underlying file.
func (fs *FileSink) Close() error {
	if err := fs.file.Sync(); err != nil {
		fs.file.Close()
		return errors.WithMessage(err, "could not flush trace file")
	}
	return errors.WithMessage(fs.file.Close(), "could not close trace file")
}
