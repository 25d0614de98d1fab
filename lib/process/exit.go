// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitError requests a specific exit code. Message may be empty when
// the command already reported the condition.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

// ExitCode returns the code err asks for: 0 for nil, the Code of an
// *ExitError in the chain, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	return 1
}

// Fatal writes "error: err" to stderr and exits with ExitCode(err).
// An *ExitError without a message exits silently.
func Fatal(err error) {
	var exitError *ExitError
	if !errors.As(err, &exitError) || exitError.Message != "" {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
