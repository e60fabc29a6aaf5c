/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package recorder_test

import (
	"bytes"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mtrace/pkg/buffer"
	"github.com/hyperledger-labs/mtrace/pkg/clock"
	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/hosttest"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/recorder"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
)

var _ = Describe("Recorder", func() {
	var (
		format encoding.Format
		clocks *clock.Source
		reg    *registry.Registry

		thread  *hosttest.Thread
		methodA = &host.MethodInfo{ClassName: "LA;", MethodName: "a", Sig: "()V", File: "A.java"}
		methodB = &host.MethodInfo{ClassName: "LB;", MethodName: "b", Sig: "()V", File: "B.java"}
	)

	BeforeEach(func() {
		format = encoding.Format{ThreadCPU: true, Wall: true}
		clocks = clock.NewSource(clock.Dual, time.Now())
		reg = registry.New()
		thread = hosttest.NewThread(1, "worker")
	})

	// decodeGlobal parses the records accumulated in the shared buffer.
	decodeGlobal := func(g *buffer.Global) []encoding.Record {
		data := g.Bytes()[encoding.HeaderLength:g.Len(format.RecordSize())]
		var records []encoding.Record
		for off := 0; off < len(data); off += format.RecordSize() {
			records = append(records, format.DecodeRecord(data[off:]))
		}
		return records
	}

	Describe("with the shared buffer", func() {
		var (
			global *buffer.Global
			rec    *recorder.Recorder
		)

		BeforeEach(func() {
			global = buffer.NewGlobal(4096)
			rec = recorder.New(clocks, reg, format, global, nil, logging.NilLogger)
		})

		It("encodes every event kind with interned ids", func() {
			rec.MethodEntered(thread, methodA)
			rec.MethodEntered(thread, methodB)
			rec.MethodExited(thread, methodB)
			rec.MethodUnwound(thread, methodA)

			records := decodeGlobal(global)
			Expect(records).To(HaveLen(4))
			Expect(records[0].Action).To(Equal(encoding.ActionEnter))
			Expect(records[1].Action).To(Equal(encoding.ActionEnter))
			Expect(records[2].Action).To(Equal(encoding.ActionExit))
			Expect(records[3].Action).To(Equal(encoding.ActionUnwind))

			Expect(records[0].MethodID).To(Equal(uint32(0)))
			Expect(records[1].MethodID).To(Equal(uint32(1)))
			Expect(records[2].MethodID).To(Equal(uint32(1)))
			Expect(records[3].MethodID).To(Equal(uint32(0)))

			for _, r := range records {
				Expect(r.ThreadID).To(Equal(uint16(0)))
			}
		})

		It("produces non-decreasing thread-cpu deltas per thread", func() {
			for i := 0; i < 10; i++ {
				rec.MethodEntered(thread, methodA)
			}

			var prev uint32
			for _, r := range decodeGlobal(global) {
				Expect(r.ThreadDelta).To(BeNumerically(">=", prev))
				prev = r.ThreadDelta
			}
		})

		It("drops events after overflow without corrupting earlier ones", func() {
			small := buffer.NewGlobal(encoding.HeaderLength + 2*format.RecordSize())
			rec = recorder.New(clocks, reg, format, small, nil, logging.NilLogger)

			for i := 0; i < 5; i++ {
				rec.MethodEntered(thread, methodA)
			}

			Expect(small.Overflowed()).To(BeTrue())
			Expect(decodeGlobal(small)).To(HaveLen(2))
			Expect(rec.Failed()).To(BeFalse())
		})

		It("survives concurrent producers", func() {
			const events = 100
			other := hosttest.NewThread(2, "other")

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := 0; i < events; i++ {
					rec.MethodEntered(thread, methodA)
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < events; i++ {
					rec.MethodEntered(other, methodB)
				}
			}()
			wg.Wait()

			records := decodeGlobal(global)
			Expect(records).To(HaveLen(2 * events))

			perThread := map[uint16]int{}
			for _, r := range records {
				perThread[r.ThreadID]++
			}
			Expect(perThread).To(HaveLen(2))
			for _, n := range perThread {
				Expect(n).To(Equal(events))
			}
		})
	})

	Describe("with streaming buffers", func() {
		var (
			sinkBuf   *bytes.Buffer
			streaming *buffer.Streaming
			rec       *recorder.Recorder
		)

		BeforeEach(func() {
			sinkBuf = &bytes.Buffer{}
			streaming = buffer.NewStreaming(sinkBuf, format, reg, 2*format.RecordSize(), logging.NilLogger)
			rec = recorder.New(clocks, reg, format, nil, streaming, logging.NilLogger)
		})

		It("appends to the thread's private buffer", func() {
			rec.MethodEntered(thread, methodA)
			Expect(streaming.Occupancy(thread.ID())).To(Equal(1))
			Expect(rec.Failed()).To(BeFalse())
		})

		It("flushes through to the sink when the buffer fills", func() {
			for i := 0; i < 3; i++ {
				rec.MethodEntered(thread, methodA)
			}
			Expect(sinkBuf.Len()).NotTo(BeZero())
		})
	})

	It("ignores the reserved event kinds", func() {
		global := buffer.NewGlobal(4096)
		rec := recorder.New(clocks, reg, format, global, nil, logging.NilLogger)

		rec.BranchTaken(thread, methodA, 3)
		rec.FieldRead(thread, methodA, 1)
		rec.FieldWritten(thread, methodA, 2)
		rec.ExceptionThrown(thread)
		rec.ExceptionHandled(thread)
		rec.DexPositionMoved(thread, methodA, 4)
		rec.WatchedFramePopped(thread)

		Expect(decodeGlobal(global)).To(BeEmpty())
	})
})
