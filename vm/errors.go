package vm

import (
	"errors"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

var (
	ErrOutOfGas       = errors.New("out of gas")
	ErrNativeNotFound = errors.New("native function not bound")
	ErrStackUnderflow = errors.New("operand stack underflow")
)

type ErrorKind string

const (
	KindAbort                   ErrorKind = "Abort"
	KindGasExhaustion           ErrorKind = "GasExhaustion"
	KindTypeError               ErrorKind = "TypeError"
	KindSerializationConflict   ErrorKind = "SerializationConflict"
	KindInsufficientCoinBalance ErrorKind = "InsufficientCoinBalance"
	KindInvalidTransition       ErrorKind = "InvalidTransition"
	KindUnusedValue             ErrorKind = "UnusedValue"
	KindArityMismatch           ErrorKind = "ArityMismatch"
	KindArithmeticError         ErrorKind = "ArithmeticError"
	KindVectorError             ErrorKind = "VectorError"
	KindCallDepthExceeded       ErrorKind = "CallDepthExceeded"
	KindUnsupported             ErrorKind = "Unsupported"
	KindMissingObject           ErrorKind = "MissingObject"
	KindLinkerError             ErrorKind = "LinkerError"
)

// Location is where an execution error was raised
type Location struct {
	Module   types.ModuleID `json:"module"`
	Function string         `json:"function"`
	Offset   int            `json:"offset"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s::%s@%d", l.Module, l.Function, l.Offset)
}

// ExecutionError is a failure of a transaction's code. It is recorded in
// the effects rather than aborting the replay.
type ExecutionError struct {
	Kind      ErrorKind `json:"kind"`
	AbortCode uint64    `json:"abort_code,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Message   string    `json:"message,omitempty"`
	Err       error     `json:"-"`
}

func (e *ExecutionError) Error() string {
	msg := string(e.Kind)

	if e.Kind == KindAbort {
		msg = fmt.Sprintf("%s(%d)", msg, e.AbortCode)
	}

	if e.Location != nil {
		msg += " at " + e.Location.String()
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewError builds an execution error of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AbortError is what natives return to abort with a code
func AbortError(code uint64) *ExecutionError {
	return &ExecutionError{Kind: KindAbort, AbortCode: code}
}

// AsExecutionError converts any error into an ExecutionError, wrapping
// foreign errors as type errors
func AsExecutionError(err error) *ExecutionError {
	if err == nil {
		return nil
	}

	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}

	if errors.Is(err, ErrOutOfGas) {
		return &ExecutionError{Kind: KindGasExhaustion, Err: err}
	}

	return &ExecutionError{Kind: KindTypeError, Err: err}
}
