/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink_test

import (
	"io/ioutil"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mtrace/pkg/sink"
)

var _ = Describe("WALSink", func() {
	var (
		tmpDir  string
		walSink *sink.WALSink
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = ioutil.TempDir("", "walsink-test")
		Expect(err).NotTo(HaveOccurred())

		walSink, err = sink.OpenWAL(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("reassembles written batches in order", func() {
		_, err := walSink.Write([]byte("first "))
		Expect(err).NotTo(HaveOccurred())
		_, err = walSink.Write([]byte("second "))
		Expect(err).NotTo(HaveOccurred())
		_, err = walSink.Write([]byte("third"))
		Expect(err).NotTo(HaveOccurred())
		Expect(walSink.Close()).NotTo(HaveOccurred())

		data, err := sink.ReadWAL(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("first second third")))
	})

	It("does not retain the caller's slice", func() {
		batch := []byte("stable")
		_, err := walSink.Write(batch)
		Expect(err).NotTo(HaveOccurred())
		copy(batch, "XXXXXX")
		Expect(walSink.Close()).NotTo(HaveOccurred())

		data, err := sink.ReadWAL(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("stable")))
	})

	It("appends after reopening", func() {
		_, err := walSink.Write([]byte("before "))
		Expect(err).NotTo(HaveOccurred())
		Expect(walSink.Close()).NotTo(HaveOccurred())

		reopened, err := sink.OpenWAL(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		_, err = reopened.Write([]byte("after"))
		Expect(err).NotTo(HaveOccurred())
		Expect(reopened.Close()).NotTo(HaveOccurred())

		data, err := sink.ReadWAL(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("before after")))
	})
})
