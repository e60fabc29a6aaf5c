/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package hosttest provides deterministic fakes for the host boundary, used by
// the engine's own tests.
package hosttest

import (
	"sync"

	"github.com/hyperledger-labs/mtrace/pkg/host"
)

// Thread is a fake producer thread with a manually driven thread-cpu clock and
// a settable call stack.
type Thread struct {
	TID        int32
	ThreadName string

	// AutoTickMicros is added to the cpu clock on every read, so successive
	// readings are strictly increasing without explicit Advance calls.
	AutoTickMicros uint64

	mutex  sync.Mutex
	cpu    uint64
	frames []host.Method
}

func NewThread(tid int32, name string) *Thread {
	return &Thread{TID: tid, ThreadName: name, AutoTickMicros: 1}
}

func (t *Thread) ID() int32 {
	return t.TID
}

func (t *Thread) Name() string {
	return t.ThreadName
}

func (t *Thread) CPUTimeMicros() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.cpu += t.AutoTickMicros
	return t.cpu
}

// AdvanceCPU moves the fake thread-cpu clock forward by us microseconds.
func (t *Thread) AdvanceCPU(us uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.cpu += us
}

// SetStack replaces the thread's current call stack, outermost frame first.
func (t *Thread) SetStack(frames ...host.Method) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.frames = append(t.frames[:0], frames...)
}

func (t *Thread) Stack(buf []host.Method) []host.Method {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append(buf, t.frames...)
}

// Threads is a fake thread list tracking suspend/resume balance.
type Threads struct {
	mutex     sync.Mutex
	list      []*Thread
	suspended int
}

func NewThreads(threads ...*Thread) *Threads {
	return &Threads{list: threads}
}

func (tl *Threads) Add(t *Thread) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.list = append(tl.list, t)
}

func (tl *Threads) SuspendAll(reason string) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.suspended++
}

func (tl *Threads) ResumeAll() {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.suspended--
}

// Suspended reports whether the producers are currently paused.
func (tl *Threads) Suspended() bool {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	return tl.suspended > 0
}

func (tl *Threads) ForEach(fn func(host.Thread)) {
	tl.mutex.Lock()
	threads := append([]*Thread(nil), tl.list...)
	tl.mutex.Unlock()
	for _, t := range threads {
		fn(t)
	}
}

// Instrumentation is a fake event-notification facility. Tests obtain the
// installed listener via Listener() and invoke its handlers directly, playing
// the role of the environment's dispatcher.
type Instrumentation struct {
	mutex        sync.Mutex
	listener     host.Listener
	allocEnabled bool

	// Allocs is returned verbatim by AllocStats.
	Allocs host.AllocStats
}

func NewInstrumentation() *Instrumentation {
	return &Instrumentation{}
}

func (i *Instrumentation) AddListener(l host.Listener) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.listener = l
}

func (i *Instrumentation) RemoveListener(l host.Listener) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if i.listener == l {
		i.listener = nil
	}
}

// Listener returns the currently installed listener, or nil.
func (i *Instrumentation) Listener() host.Listener {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.listener
}

func (i *Instrumentation) SetAllocTrackingEnabled(enabled bool) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.allocEnabled = enabled
}

// AllocTrackingEnabled reports the last value passed to SetAllocTrackingEnabled.
func (i *Instrumentation) AllocTrackingEnabled() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.allocEnabled
}

func (i *Instrumentation) AllocStats() host.AllocStats {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.Allocs
}
