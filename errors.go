/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mtrace

import "github.com/pkg/errors"

var (
	// ErrAlreadyTracing is returned by Start while a session is in progress.
	ErrAlreadyTracing = errors.New("tracing session already in progress")

	// ErrSinkUnavailable is returned by Start when the configured output
	// destination cannot be opened.
	ErrSinkUnavailable = errors.New("trace output destination unavailable")
)
