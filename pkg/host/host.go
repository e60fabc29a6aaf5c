/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package host defines the boundary between the tracing engine and the managed
// execution environment it observes. The engine consumes these interfaces; it
// never implements them. How the environment suspends threads, enumerates them,
// or walks a call stack is entirely its own concern.
package host

// Method is an opaque, stable handle to an executable method of the traced
// program. Implementations must be comparable (the engine uses Method values
// as map keys when interning ids), and the same method must always be
// presented as the same value within one tracing session.
type Method interface {

	// Class returns the display name of the type declaring the method.
	Class() string

	// Name returns the method's display name.
	Name() string

	// Signature returns the method's display signature.
	Signature() string

	// SourceFile returns the file the method was compiled from, if known.
	SourceFile() string
}

// Thread represents one producer thread of the traced program. Implementations
// are handed to the engine on every event delivered from that thread and must
// be safe for the engine to query from the delivering thread itself as well as
// from the sampling thread while all producers are suspended.
type Thread interface {

	// ID returns the thread's stable OS-level identifier.
	ID() int32

	// Name returns the thread's current display name.
	Name() string

	// CPUTimeMicros returns the thread-cpu clock reading in microseconds.
	CPUTimeMicros() uint64

	// Stack appends the thread's current call stack to buf, outermost frame
	// first, and returns the extended slice. The engine passes a pooled
	// buffer with spare capacity so that steady-state sampling performs no
	// allocation.
	Stack(buf []Method) []Method
}

// Threads enumerates the program's live threads and provides the global
// pause/resume primitive the engine uses to establish a quiescence point.
type Threads interface {

	// SuspendAll pauses every producer thread. The reason is used for
	// diagnostics only.
	SuspendAll(reason string)

	// ResumeAll resumes the threads paused by SuspendAll.
	ResumeAll()

	// ForEach invokes fn for every live thread. Callers pause the producers
	// first when they need a consistent view.
	ForEach(fn func(Thread))
}

// Listener receives program execution events. The engine installs exactly one
// Listener for the lifetime of a method-tracing session; the environment's
// dispatcher invokes the handlers synchronously on the thread the event
// occurred on.
type Listener interface {
	MethodEntered(t Thread, m Method)
	MethodExited(t Thread, m Method)
	MethodUnwound(t Thread, m Method)
	BranchTaken(t Thread, m Method, offset int32)
	FieldRead(t Thread, m Method, pos uint32)
	FieldWritten(t Thread, m Method, pos uint32)
	ExceptionThrown(t Thread)
	ExceptionHandled(t Thread)
	DexPositionMoved(t Thread, m Method, pos uint32)
	WatchedFramePopped(t Thread)
}

// AllocStats is a snapshot of the environment's allocation counters, reported
// in the trace summary when allocation counting was requested.
type AllocStats struct {
	AllocCount uint64
	AllocBytes uint64
	GCCount    uint64
}

// Instrumentation is the event-notification facility of the environment.
type Instrumentation interface {

	// AddListener installs l as the receiver of execution events.
	AddListener(l Listener)

	// RemoveListener uninstalls a previously added listener.
	RemoveListener(l Listener)

	// SetAllocTrackingEnabled toggles the environment's allocation counters.
	SetAllocTrackingEnabled(enabled bool)

	// AllocStats returns the current allocation counters.
	AllocStats() AllocStats
}
