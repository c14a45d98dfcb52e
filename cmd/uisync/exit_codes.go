package main

import (
	"errors"

	uierrors "github.com/odvcencio/uisync/pkg/errors"
)

const (
	exitGeneral   = 1
	exitUsage     = 2
	exitTimeout   = 3
	exitNonInit   = 4
	exitInterrupt = 5
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return 1
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

// withStatusExitCode tags err with the exit code of its status.
func withStatusExitCode(err error) error {
	if err == nil {
		return nil
	}
	if uierrors.IsCode(err, uierrors.ErrCodeInvalidInput) {
		return withExitCode(err, exitUsage)
	}
	return withExitCode(err, exitCodeForStatus(uierrors.StatusOf(err)))
}

func exitCodeForStatus(status uierrors.Status) int {
	switch status {
	case uierrors.StatusNone:
		return 0
	case uierrors.StatusTimeout:
		return exitTimeout
	case uierrors.StatusNonInit:
		return exitNonInit
	case uierrors.StatusInterrupt:
		return exitInterrupt
	default:
		return exitGeneral
	}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	switch uierrors.GetCode(err) {
	case uierrors.ErrCodeConfigLoad, uierrors.ErrCodeConfigParse, uierrors.ErrCodeConfigInvalid, uierrors.ErrCodeInvalidInput:
		return exitUsage
	}
	return exitGeneral
}
