/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"strings"

	"github.com/hyperledger-labs/mtrace/pkg/encoding"
)

// one-line concise renderings of trace stream elements, in the spirit of
// [name=value ...] bracketed fields

func headerString(h encoding.Header) string {
	return fmt.Sprintf("[header=[version=%d streaming=%t start_time_usec=%d record_size=%d]]\n",
		h.Version, h.Streaming, h.StartTimeUsec, h.RecordSize)
}

func eventString(e encoding.Event) string {
	switch e.Kind {
	case encoding.KindMethodDecl:
		return fmt.Sprintf("[method_decl=[%s]]\n", strings.ReplaceAll(strings.TrimSuffix(e.MethodLine, "\n"), "\t", " "))
	case encoding.KindThreadDecl:
		return fmt.Sprintf("[thread_decl=[tid=%d name=%q]]\n", e.ThreadID, e.ThreadName)
	case encoding.KindSummary:
		return fmt.Sprintf("[summary=[%d bytes]]\n%s", len(e.Summary), e.Summary)
	default:
		r := e.Record
		return fmt.Sprintf("[record=[tid=%d method=%#x action=%s cpu_delta_usec=%d wall_delta_usec=%d]]\n",
			r.ThreadID, r.MethodID, r.Action, r.ThreadDelta, r.WallDelta)
	}
}
