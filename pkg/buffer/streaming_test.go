/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package buffer_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mtrace/pkg/buffer"
	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/hosttest"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
)

var _ = Describe("Streaming", func() {
	var (
		format    encoding.Format
		reg       *registry.Registry
		sinkBuf   *bytes.Buffer
		streaming *buffer.Streaming

		thread  *hosttest.Thread
		methodA = &host.MethodInfo{ClassName: "LA;", MethodName: "a", Sig: "()V", File: "A.java"}
		methodB = &host.MethodInfo{ClassName: "LB;", MethodName: "b", Sig: "()V", File: "B.java"}
	)

	// decode re-reads everything flushed so far, prepending the header the
	// session writer would have emitted before any batch.
	decode := func() []encoding.Event {
		var full bytes.Buffer
		var hdr [encoding.HeaderLength]byte
		encoding.EncodeHeader(hdr[:], format.Version()|encoding.StreamingVersionFlag, 0, uint16(format.RecordSize()))
		full.Write(hdr[:])
		full.Write(sinkBuf.Bytes())

		d, err := encoding.NewDecoder(&full)
		Expect(err).NotTo(HaveOccurred())

		var events []encoding.Event
		for {
			e, err := d.Next()
			if err != nil {
				return events
			}
			events = append(events, e)
		}
	}

	BeforeEach(func() {
		format = encoding.Format{ThreadCPU: true, Wall: true}
		reg = registry.New()
		sinkBuf = &bytes.Buffer{}
		// Room for 4 entries per thread.
		streaming = buffer.NewStreaming(sinkBuf, format, reg, 4*format.RecordSize(), logging.NilLogger)
		thread = hosttest.NewThread(1, "worker")
	})

	It("sizes the per-thread buffers from the configured byte size", func() {
		Expect(streaming.EntryCapacity()).To(Equal(4))
	})

	It("buffers entries without touching the sink", func() {
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.Occupancy(thread.ID())).To(Equal(1))
		Expect(sinkBuf.Len()).To(BeZero())
	})

	It("declares the thread and new methods ahead of their first records", func() {
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter, ThreadDelta: 1, WallDelta: 2})).To(Succeed())
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionExit, ThreadDelta: 3, WallDelta: 4})).To(Succeed())
		Expect(streaming.FlushThread(thread)).To(Succeed())

		events := decode()
		Expect(events).To(HaveLen(4))
		Expect(events[0].Kind).To(Equal(encoding.KindThreadDecl))
		Expect(events[0].ThreadID).To(Equal(uint16(0)))
		Expect(events[0].ThreadName).To(Equal("worker"))
		Expect(events[1].Kind).To(Equal(encoding.KindMethodDecl))
		Expect(events[1].MethodLine).To(Equal(encoding.MethodLine(0, methodA)))
		Expect(events[2].Record).To(Equal(encoding.Record{ThreadID: 0, MethodID: 0, Action: encoding.ActionEnter, ThreadDelta: 1, WallDelta: 2}))
		Expect(events[3].Record).To(Equal(encoding.Record{ThreadID: 0, MethodID: 0, Action: encoding.ActionExit, ThreadDelta: 3, WallDelta: 4}))
	})

	It("declares each identity exactly once across flushes", func() {
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.FlushThread(thread)).To(Succeed())
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionExit})).To(Succeed())
		Expect(streaming.Write(thread, buffer.Entry{Method: methodB, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.FlushThread(thread)).To(Succeed())

		var threadDecls, methodDecls int
		for _, e := range decode() {
			switch e.Kind {
			case encoding.KindThreadDecl:
				threadDecls++
			case encoding.KindMethodDecl:
				methodDecls++
			}
		}
		Expect(threadDecls).To(Equal(1))
		Expect(methodDecls).To(Equal(2))
	})

	It("flushes a full buffer before accepting the next entry", func() {
		for i := 0; i < 4; i++ {
			Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		}
		Expect(sinkBuf.Len()).To(BeZero())

		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.Occupancy(thread.ID())).To(Equal(1))
		Expect(sinkBuf.Len()).NotTo(BeZero())
	})

	It("keeps per-thread batches contiguous in the sink", func() {
		other := hosttest.NewThread(2, "other")
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.Write(other, buffer.Entry{Method: methodB, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.FlushAll()).To(Succeed())

		events := decode()
		// Each thread's declaration is immediately followed by that thread's
		// records, never interleaved with the other thread's.
		var current uint16
		for _, e := range events {
			switch e.Kind {
			case encoding.KindThreadDecl:
				current = e.ThreadID
			case encoding.KindRecord:
				Expect(e.Record.ThreadID).To(Equal(current))
			}
		}
	})

	It("resets occupancy after every flush", func() {
		Expect(streaming.Write(thread, buffer.Entry{Method: methodA, Action: encoding.ActionEnter})).To(Succeed())
		Expect(streaming.FlushThread(thread)).To(Succeed())
		Expect(streaming.Occupancy(thread.ID())).To(BeZero())

		// Flushing an empty or unknown thread is a no-op.
		Expect(streaming.FlushThread(thread)).To(Succeed())
		Expect(streaming.FlushThread(hosttest.NewThread(9, "never wrote"))).To(Succeed())
	})
})
