package dts

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the assembler recovers from locally.
// None of these ever escape Consume; they are surfaced only through the
// optional error hook passed to NewFrameAssembler.
var (
	ErrNotEnoughBits            = errors.New("dts: not enough bits remaining")
	ErrBufferOverflow           = errors.New("dts: frame buffer exceeded max frame size")
	ErrExssAccumulatorOverflow  = errors.New("dts: exss accumulator exceeded capacity")
	ErrUnexpectedSyncTransition = errors.New("dts: unexpected sync word transition")
)

// DecodeError records which header field was being decoded when a sentinel
// error occurred.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dts: decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
