/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package registry_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
)

var _ = Describe("Registry", func() {
	var (
		reg *registry.Registry

		methodA = &host.MethodInfo{ClassName: "LA;", MethodName: "a", Sig: "()V", File: "A.java"}
		methodB = &host.MethodInfo{ClassName: "LB;", MethodName: "b", Sig: "()V", File: "B.java"}
	)

	BeforeEach(func() {
		reg = registry.New()
	})

	Describe("method interning", func() {
		It("assigns dense ids starting at zero", func() {
			Expect(reg.InternMethod(methodA)).To(Equal(uint32(0)))
			Expect(reg.InternMethod(methodB)).To(Equal(uint32(1)))
		})

		It("returns stable ids on repeat observations", func() {
			id := reg.InternMethod(methodA)
			for i := 0; i < 3; i++ {
				Expect(reg.InternMethod(methodA)).To(Equal(id))
			}
		})

		It("reports first observation exactly once", func() {
			_, isNew := reg.InternMethodNew(methodA)
			Expect(isNew).To(BeTrue())
			_, isNew = reg.InternMethodNew(methodA)
			Expect(isNew).To(BeFalse())
		})

		It("resolves ids back to methods", func() {
			id := reg.InternMethod(methodB)
			m, ok := reg.ResolveMethod(id)
			Expect(ok).To(BeTrue())
			Expect(m).To(BeIdenticalTo(host.Method(methodB)))

			_, ok = reg.ResolveMethod(5)
			Expect(ok).To(BeFalse())
		})

		It("assigns one id under concurrent interning", func() {
			const workers = 8
			ids := make([]uint32, workers)
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func(i int) {
					defer wg.Done()
					ids[i] = reg.InternMethod(methodA)
				}(i)
			}
			wg.Wait()
			for _, id := range ids {
				Expect(id).To(Equal(ids[0]))
			}
		})
	})

	Describe("thread interning", func() {
		It("assigns dense ids independent of the OS thread id", func() {
			id, err := reg.InternThread(4711, "worker-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(uint16(0)))

			id, err = reg.InternThread(13, "worker-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(uint16(1)))

			id, err = reg.InternThread(4711, "renamed")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(uint16(0)))
			Expect(reg.ThreadCount()).To(Equal(2))
		})

		It("fails once the 16-bit id space is exhausted", func() {
			for i := 0; i < 0xFFFF; i++ {
				_, err := reg.InternThread(int32(i), fmt.Sprintf("t%d", i))
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := reg.InternThread(0x10000, "one too many")
			Expect(err).To(Equal(registry.ErrThreadSpaceExhausted))

			// Known threads are unaffected.
			id, err := reg.InternThread(7, "t7")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(uint16(7)))
		})

		It("keeps the first-observed name until updated", func() {
			_, err := reg.InternThread(1, "original")
			Expect(err).NotTo(HaveOccurred())
			reg.UpdateThreadName(1, "current")
			reg.UpdateThreadName(99, "never interned")

			Expect(reg.Threads()).To(Equal([]registry.ThreadEntry{
				{ID: 0, Name: "current"},
			}))
		})
	})

	Describe("the summary tables", func() {
		It("lists threads sorted by id, including silent exited threads", func() {
			_, err := reg.InternThread(10, "main")
			Expect(err).NotTo(HaveOccurred())
			reg.RecordThreadExit(20, "short lived")

			Expect(reg.Threads()).To(Equal([]registry.ThreadEntry{
				{ID: 0, Name: "main"},
				{ID: 1, Name: "short lived"},
			}))
		})

		It("prefers the exit-time name for threads that produced events", func() {
			_, err := reg.InternThread(10, "worker")
			Expect(err).NotTo(HaveOccurred())
			reg.RecordThreadExit(10, "worker [exiting]")

			Expect(reg.Threads()).To(Equal([]registry.ThreadEntry{
				{ID: 0, Name: "worker [exiting]"},
			}))
		})

		It("lists methods in id order", func() {
			reg.InternMethod(methodA)
			reg.InternMethod(methodB)

			entries := reg.Methods()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ID).To(Equal(uint32(0)))
			Expect(entries[0].Method).To(BeIdenticalTo(host.Method(methodA)))
			Expect(entries[1].ID).To(Equal(uint32(1)))
			Expect(entries[1].Method).To(BeIdenticalTo(host.Method(methodB)))
		})
	})
})
