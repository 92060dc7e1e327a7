package kfx

import (
	"errors"
	"fmt"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/style"
	"github.com/logicossoftware/go-kfx/symtab"
)

var (
	ErrUnresolvedSymbol       = ion.ErrUnresolvedSymbol
	ErrStyleSignatureConflict = style.ErrStyleSignatureConflict
	ErrCapacityExceeded       = symtab.ErrCapacityExceeded
	ErrMalformedInputTree     = errors.New("kfx: malformed input tree")
	ErrIO                     = errors.New("kfx: i/o error")

	ErrInvalidMagic       = errors.New("kfx: invalid magic")
	ErrUnsupportedVersion = errors.New("kfx: unsupported version")
	ErrInvalidHeader      = errors.New("kfx: invalid container header")
	ErrInvalidEntity      = errors.New("kfx: invalid entity")
	ErrInvalidState       = errors.New("kfx: invalid assembler state")
	ErrInvalidPayload     = errors.New("kfx: invalid payload")
	ErrLimitExceeded      = errors.New("kfx: limit exceeded")
	ErrVerification       = errors.New("kfx: verification failed")
)

// MalformedInputError reports a structural problem in the input tree. Path
// locates the offending node, e.g. "sections[1].blocks[0].children[2]".
type MalformedInputError struct {
	Path   string
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", ErrMalformedInputTree, e.Reason)
	}
	return fmt.Sprintf("%v at %s: %s", ErrMalformedInputTree, e.Path, e.Reason)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInputTree }

func malformed(path, format string, args ...any) error {
	return &MalformedInputError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IOError reports a failed write of the finished container. Path is the
// output path the caller asked for; Temp names the temporary file when the
// failure happened before the rename.
type IOError struct {
	Op   string
	Path string
	Temp string
	Err  error
}

func (e *IOError) Error() string {
	if e.Temp != "" {
		return fmt.Sprintf("%v: %s %s (via %s): %v", ErrIO, e.Op, e.Path, e.Temp, e.Err)
	}
	return fmt.Sprintf("%v: %s %s: %v", ErrIO, e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }
