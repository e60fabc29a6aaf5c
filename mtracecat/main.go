/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// mtracecat is a utility for reviewing binary method traces. It understands
// the format produced by github.com/hyperledger-labs/mtrace, both as a plain
// trace file and as a write-ahead log of streamed chunks, and is able to
// parse and filter the decoded events.
package main

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/sink"
)

// command line flags
var (
	allEventTypes = []string{
		"Record",
		"MethodDecl",
		"ThreadDecl",
		"Summary",
	}

	allActions = []string{
		"Enter",
		"Exit",
		"Unwind",
	}
)

// excludeByType is used both for --action/--notAction and for
// --eventType/--notEventType. The assumption is that at least one of include
// or exclude is nil.
func excludeByType(value string, include []string, exclude []string) bool {
	if include != nil {
		for _, includeName := range include {
			if includeName == value {
				return false
			}
		}

		return true
	}

	for _, excludeName := range exclude {
		if excludeName == value {
			return true
		}
	}

	return false
}

func excludedByThreadID(tid uint16, threadIDs []uint64) bool {
	if threadIDs == nil {
		return false
	}

	for _, id := range threadIDs {
		if uint16(id) == tid {
			return false
		}
	}

	return true
}

func eventTypeName(e encoding.Event) string {
	switch e.Kind {
	case encoding.KindMethodDecl:
		return "MethodDecl"
	case encoding.KindThreadDecl:
		return "ThreadDecl"
	case encoding.KindSummary:
		return "Summary"
	default:
		return "Record"
	}
}

type arguments struct {
	input         *os.File
	walDir        string
	threadIDs     []uint64
	eventTypes    []string
	notEventTypes []string
	actions       []string
	notActions    []string
}

func (a *arguments) execute(out io.Writer) error {
	var data []byte
	var err error
	if a.walDir != "" {
		data, err = sink.ReadWAL(a.walDir)
	} else {
		defer a.input.Close()
		data, err = ioutil.ReadAll(a.input)
	}
	if err != nil {
		return errors.WithMessage(err, "failed reading input")
	}

	decoder, err := encoding.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return errors.WithMessage(err, "failed reading input")
	}

	fmt.Fprint(out, headerString(decoder.Header()))

	for {
		event, err := decoder.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return errors.WithMessage(err, "failed reading input")
		}

		if excludeByType(eventTypeName(event), a.eventTypes, a.notEventTypes) {
			continue
		}
		if event.Kind == encoding.KindRecord {
			if excludedByThreadID(event.Record.ThreadID, a.threadIDs) {
				continue
			}
			if excludeByType(event.Record.Action.String(), a.actions, a.notActions) {
				continue
			}
		}

		fmt.Fprint(out, eventString(event))
	}
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("mtracecat", "Utility for processing binary method traces.")
	input := app.Flag("input", "The trace file to read (defaults to stdin).").Default(os.Stdin.Name()).File()
	walDir := app.Flag("wal", "Read the trace from a write-ahead log directory instead of a file.").String()
	threadIDs := app.Flag("tid", "Report records from this thread id only, may be repeated.").Uint64List()
	eventTypes := app.Flag("eventType", "Which event types to report.").Enums(allEventTypes...)
	notEventTypes := app.Flag("notEventType", "Which event types to exclude. (Cannot combine with --eventType)").Enums(allEventTypes...)
	actions := app.Flag("action", "Which record actions to report.").Enums(allActions...)
	notActions := app.Flag("notAction", "Which record actions to exclude. (Cannot combine with --action)").Enums(allActions...)

	_, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	switch {
	case *eventTypes != nil && *notEventTypes != nil:
		return nil, errors.Errorf("Cannot set both --eventType and --notEventType")
	case *actions != nil && *notActions != nil:
		return nil, errors.Errorf("Cannot set both --action and --notAction")
	}

	return &arguments{
		input:         *input,
		walDir:        *walDir,
		threadIDs:     *threadIDs,
		eventTypes:    *eventTypes,
		notEventTypes: *notEventTypes,
		actions:       *actions,
		notActions:    *notActions,
	}, nil
}

func main() {
	kingpin.Version("0.0.1")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%s, try --help", err)
	}
	if err := args.execute(os.Stdout); err != nil {
		kingpin.Fatalf("%s", err)
	}
}
