package asm

import (
	"errors"
	"fmt"
)

// Sentinel assembly errors (spec §7's "assembly errors" kind). All are
// recoverable: Assemble wraps one of these with its source line and
// keeps going rather than aborting on the first one.
var (
	ErrUnknownMnemonic        = errors.New("unknown mnemonic")
	ErrWrongOperandCount      = errors.New("wrong operand count")
	ErrInvalidRegister        = errors.New("invalid register")
	ErrInvalidImmediate       = errors.New("invalid immediate")
	ErrMalformedMemoryOperand = errors.New("malformed memory operand")
	ErrDuplicateLabel         = errors.New("duplicate label")
	ErrUndefinedLabel         = errors.New("undefined label")
)

// lineError wraps a sentinel error with the source line it occurred on
// and, optionally, the offending token.
func lineError(line int, sentinel error, detail string) error {
	if detail == "" {
		return fmt.Errorf("line %d: %w", line, sentinel)
	}
	return fmt.Errorf("line %d: %w: %s", line, sentinel, detail)
}
