/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package registry interns method and thread identities into the compact
// integer ids the wire format carries.
package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
)

// ErrThreadSpaceExhausted is returned by InternThread when a session has
// observed more distinct threads than the 16-bit wire format can represent.
// The condition is fatal for the session, not for the host program.
var ErrThreadSpaceExhausted = errors.New("16-bit thread id space exhausted")

// ThreadEntry is one row of the summary's thread table.
type ThreadEntry struct {
	ID   uint16
	Name string
}

// MethodEntry is one row of the summary's method table.
type MethodEntry struct {
	ID     uint32
	Method host.Method
}

// Registry assigns dense, session-stable ids. Method ids start at 0 and grow
// without bound; thread ids start at 0 and stop just below the metadata
// sentinel. Ids are never reassigned or compacted within a session.
type Registry struct {
	mutex sync.Mutex

	methods  map[host.Method]uint32
	methodID []host.Method // reverse lookup, indexed by id

	threads     map[int32]uint16
	threadNames map[uint16]string

	// Names of threads that exited mid-session, keyed by OS thread id. Kept
	// separately because the exiting thread may never have produced an event.
	exited map[int32]string
}

func New() *Registry {
	return &Registry{
		methods:     map[host.Method]uint32{},
		threads:     map[int32]uint16{},
		threadNames: map[uint16]string{},
		exited:      map[int32]string{},
	}
}

// InternMethod returns the session id for m, assigning the next id on first
// observation.
func (r *Registry) InternMethod(m host.Method) uint32 {
	id, _ := r.InternMethodNew(m)
	return id
}

// InternMethodNew additionally reports whether this call assigned the id,
// which the streaming flusher uses to decide whether a declaration record
// must precede the method's first reference.
func (r *Registry) InternMethodNew(m host.Method) (uint32, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if id, ok := r.methods[m]; ok {
		return id, false
	}
	id := uint32(len(r.methodID))
	r.methods[m] = id
	r.methodID = append(r.methodID, m)
	return id, true
}

// ResolveMethod is the reverse lookup, used at finalize time.
func (r *Registry) ResolveMethod(id uint32) (host.Method, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if int(id) >= len(r.methodID) {
		return nil, false
	}
	return r.methodID[id], true
}

// InternThread returns the 16-bit wire id for the OS thread id, recording the
// given display name on first observation.
func (r *Registry) InternThread(tid int32, name string) (uint16, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.internThreadLocked(tid, name)
}

func (r *Registry) internThreadLocked(tid int32, name string) (uint16, error) {
	if id, ok := r.threads[tid]; ok {
		return id, nil
	}
	if len(r.threads) >= int(encoding.SentinelThreadID) {
		return 0, ErrThreadSpaceExhausted
	}
	id := uint16(len(r.threads))
	r.threads[tid] = id
	r.threadNames[id] = name
	return id, nil
}

// UpdateThreadName overwrites the recorded name of an already-interned thread.
// Used at session stop to capture names current at that moment.
func (r *Registry) UpdateThreadName(tid int32, name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if id, ok := r.threads[tid]; ok {
		r.threadNames[id] = name
	}
}

// RecordThreadExit captures the display name of a thread that is about to
// disappear, independent of whether the thread has an interned id yet.
func (r *Registry) RecordThreadExit(tid int32, name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.exited[tid] = name
}

// Threads returns the thread table for the summary, sorted by id. Threads
// that exited mid-session without ever producing an event are assigned ids
// here so their names are not lost; if the id space is already exhausted they
// are silently omitted, as there is no id to list them under.
func (r *Registry) Threads() []ThreadEntry {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for tid, name := range r.exited {
		if id, err := r.internThreadLocked(tid, name); err == nil {
			r.threadNames[id] = name
		}
	}

	entries := make([]ThreadEntry, 0, len(r.threadNames))
	for id, name := range r.threadNames {
		entries = append(entries, ThreadEntry{ID: id, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Methods returns the method table for the summary, in id order.
func (r *Registry) Methods() []MethodEntry {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entries := make([]MethodEntry, len(r.methodID))
	for id, m := range r.methodID {
		entries[id] = MethodEntry{ID: uint32(id), Method: m}
	}
	return entries
}

// ThreadCount returns the number of interned threads.
func (r *Registry) ThreadCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.threads)
}
