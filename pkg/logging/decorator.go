/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import "fmt"

type decoratedLogger struct {
	logger Logger
	prefix string
	args   []interface{}
}

func (dl *decoratedLogger) Log(level LogLevel, text string, args ...interface{}) {
	passedArgs := append(dl.args, args...)
	dl.logger.Log(level, fmt.Sprintf("%s%s", dl.prefix, text), passedArgs...)
}

// Decorate returns a Logger that prepends prefix to every message and appends
// args to every message's key/value details before passing them to logger.
func Decorate(logger Logger, prefix string, args ...interface{}) Logger {
	return &decoratedLogger{
		prefix: prefix,
		logger: logger,
		args:   args,
	}
}
