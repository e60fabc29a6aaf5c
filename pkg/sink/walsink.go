/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"io"

	"github.com/pkg/errors"
	"github.com/tidwall/wal"
)

// WALSink appends each written batch as one entry of a write-ahead log, so a
// streaming session's output survives a crash of the traced process up to the
// last completed flush. More sophisticated segment management may come later;
// this is just a simple place to start.
type WALSink struct {
	log  *wal.Log
	next uint64
}

// OpenWAL opens (or creates) the log directory at path.
func OpenWAL(path string) (*WALSink, error) {
	log, err := wal.Open(path, &wal.Options{
		NoSync: true,
		NoCopy: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open WAL")
	}

	lastIndex, err := log.LastIndex()
	if err != nil {
		log.Close()
		return nil, errors.WithMessage(err, "could not read last index")
	}

	return &WALSink{log: log, next: lastIndex + 1}, nil
}

// Write appends p as the next log entry.
func (w *WALSink) Write(p []byte) (int, error) {
	// The log retains the slice (NoCopy), so hand it a private copy.
	entry := append([]byte(nil), p...)
	if err := w.log.Write(w.next, entry); err != nil {
		return 0, errors.WithMessagef(err, "could not write WAL entry %d", w.next)
	}
	w.next++
	return len(p), nil
}

// Close syncs and closes the log.
func (w *WALSink) Close() error {
	if err := w.log.Sync(); err != nil {
		w.log.Close()
		return errors.WithMessage(err, "could not sync WAL")
	}
	return errors.WithMessage(w.log.Close(), "could not close WAL")
}

// ReadWAL concatenates all entries of the log at path, reassembling the trace
// byte stream a WALSink produced. Used by tooling and tests.
func ReadWAL(path string) ([]byte, error) {
	log, err := wal.Open(path, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open WAL")
	}
	defer log.Close()

	first, err := log.FirstIndex()
	if err != nil {
		return nil, errors.WithMessage(err, "could not read first index")
	}
	last, err := log.LastIndex()
	if err != nil {
		return nil, errors.WithMessage(err, "could not read last index")
	}

	var data []byte
	for i := first; i != 0 && i <= last; i++ {
		entry, err := log.Read(i)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.WithMessagef(err, "could not read WAL entry %d", i)
		}
		data = append(data, entry...)
	}
	return data, nil
}
