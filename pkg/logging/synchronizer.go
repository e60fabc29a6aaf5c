/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import "sync"

type synchronizedLogger struct {
	logger Logger
	mutex  sync.Mutex
}

func (sl *synchronizedLogger) Log(level LogLevel, text string, args ...interface{}) {
	sl.mutex.Lock()
	sl.logger.Log(level, text, args...)
	sl.mutex.Unlock()
}

// Synchronize wraps logger so that concurrent Log calls do not interleave.
func Synchronize(logger Logger) Logger {
	return &synchronizedLogger{
		logger: logger,
	}
}
