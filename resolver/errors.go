package resolver

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type ErrorKind string

const (
	ModuleNotFound   ErrorKind = "ModuleNotFound"
	FunctionNotFound ErrorKind = "FunctionNotFound"
	NotCallable      ErrorKind = "NotCallable"
)

// ResolutionError is returned when a call target cannot be linked
type ResolutionError struct {
	Kind     ErrorKind
	Module   types.ModuleID
	Function string
	Err      error
}

func (e *ResolutionError) Error() string {
	target := e.Module.String()
	if e.Function != "" {
		target += "::" + e.Function
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, target, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, target)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
