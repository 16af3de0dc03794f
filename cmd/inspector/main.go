package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hakim/inspector/internal/auth"
)

const (
	exitOK           = 0
	exitError        = 1
	exitUnauthorized = 2
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps an error returned by a command onto the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, auth.ErrUnauthorized):
		return exitUnauthorized
	default:
		return exitError
	}
}
