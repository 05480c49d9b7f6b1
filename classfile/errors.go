package classfile

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated      = errors.New("truncated input")
	ErrLengthMismatch = errors.New("attribute length mismatch")
	ErrUnknownTag     = errors.New("unknown constant pool tag")
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrBadOpcode      = errors.New("unsupported opcode")
	ErrBadBranch      = errors.New("branch target outside code")
	ErrNotMethod      = errors.New("code attribute on a non-method member")
	ErrInconsistent   = errors.New("inconsistent operand stack at merge point")
	ErrBadIndex       = errors.New("constant pool index of the wrong kind")
	ErrBadMagic       = errors.New("not a class file")
)

// DecodeError reports malformed input. Unit names the class or method
// being decoded and Offset the byte position the failure was detected at,
// relative to the buffer that unit was read from.
type DecodeError struct {
	Unit   string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("decode error at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("decode %s at offset %d: %v", e.Unit, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// withUnit names unit in the first DecodeError wrapped by err, unless it
// already names one. The wrapping context of err is kept.
func withUnit(err error, unit string) error {
	var de *DecodeError
	if errors.As(err, &de) && de.Unit == "" {
		de.Unit = unit
	}
	return err
}
