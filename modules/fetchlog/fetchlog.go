// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fetchlog is a thin logrus wrapper that stamps log lines with
// the calling function and line number, the way the teacher's trace
// package does for error construction.
package fetchlog

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

// location returns the file-less call site (function name and line)
// skip frames up from here.
func location(skip int) (string, int) {
	pc, _, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", line
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?", line
	}
	return fn.Name(), line
}

// Errorf logs at Error level with a call-site prefix and returns the
// formatted message as an error, for callers that want to both log and
// propagate in one call.
func Errorf(format string, a ...any) error {
	fn, line := location(2)
	msg := fmt.Sprintf(format, a...)
	logrus.Errorf("%s:%d %s", fn, line, msg)
	return errors.New(msg)
}

// Warnf logs at Warn level with a call-site prefix. Used for
// non-fatal negotiation conditions: no common commits found, a ref
// that could not be resolved, an in-vain give-up.
func Warnf(format string, a ...any) {
	fn, line := location(2)
	logrus.Warnf("%s:%d %s", fn, line, fmt.Sprintf(format, a...))
}

// Debugf logs at Debug level, used for the have/ACK trace that mirrors
// the source's `args.verbose` output.
func Debugf(format string, a ...any) {
	logrus.Debugf(format, a...)
}
