/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"github.com/rs/zerolog"
)

type zerologLogger struct {
	logger zerolog.Logger
}

func (zl *zerologLogger) Log(level LogLevel, text string, args ...interface{}) {
	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = zl.logger.Debug()
	case LevelInfo:
		event = zl.logger.Info()
	case LevelWarn:
		event = zl.logger.Warn()
	default:
		event = zl.logger.Error()
	}

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	event.Msg(text)
}

// NewZerologLogger adapts a zerolog.Logger to the Logger interface.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}
