package replay

import (
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/reconstruct"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

// Class is the classification of a failed attempt. The zero class means
// the attempt succeeded.
type Class string

const (
	ClassNone               Class = ""
	ClassMissingChildObject Class = "MissingChildObject"
	ClassMissingPackage     Class = "MissingPackage"
	ClassVersionMismatch    Class = "VersionMismatch"
	ClassGasExhaustion      Class = "GasExhaustion"
	ClassUnrecoverable      Class = "Unrecoverable"
)

func (c Class) label() string {
	if c == ClassNone {
		return "Success"
	}

	return string(c)
}

// Recoverable reports whether more hydration may fix the attempt
func (c Class) Recoverable() bool {
	return c != ClassNone && c != ClassUnrecoverable
}

// attemptResult is what one attempt produced
type attemptResult struct {
	diag       *reconstruct.Diagnostics
	result     *ptb.Result
	err        error
	comparison *ComparisonResult
}

// Classify decides why an attempt failed. The hint explains the decision
// for the report.
func Classify(diag *reconstruct.Diagnostics, res *ptb.Result, execErr error, cmp *ComparisonResult) (Class, string) {
	return classify(&attemptResult{diag: diag, result: res, err: execErr, comparison: cmp})
}

//nolint:gocyclo
func classify(a *attemptResult) (Class, string) {
	if a.err != nil {
		return classifyError(a.err)
	}

	if a.result == nil {
		return ClassUnrecoverable, "execution produced no effects"
	}

	effects := a.result.Effects

	switch {
	case a.comparison != nil && a.comparison.OK:
		return ClassNone, ""
	case a.comparison == nil && effects.Success:
		return ClassNone, ""
	case len(a.result.MissingChildren) > 0:
		return ClassMissingChildObject, "a dynamic field child was not available"
	}

	if execErr := a.result.Err; execErr != nil {
		var re *resolver.ResolutionError

		switch {
		case errors.As(execErr, &re) && re.Kind == resolver.ModuleNotFound,
			execErr.Kind == vm.KindLinkerError:
			return ClassMissingPackage, "a module could not be linked"
		case execErr.Kind == vm.KindMissingObject:
			return ClassMissingChildObject, "an object loaded at runtime was not available"
		case execErr.Kind == vm.KindGasExhaustion && expectedSuccess(a.comparison):
			return ClassGasExhaustion, "local execution ran out of gas where the chain did not"
		}
	}

	if a.diag != nil && len(a.diag.MissingPackages) > 0 {
		return ClassMissingPackage, "packages of the closure were not found"
	}

	if !effects.Success && expectedSuccess(a.comparison) && a.result.Err != nil &&
		a.result.Err.Kind == vm.KindAbort {
		return ClassVersionMismatch, "abort where the chain succeeded, possibly a package version check"
	}

	if a.comparison != nil {
		return ClassUnrecoverable, "effects differ: " + string(a.comparison.ReasonCode)
	}

	return ClassUnrecoverable, "local execution failed"
}

func classifyError(err error) (Class, string) {
	var re *resolver.ResolutionError

	switch {
	case errors.As(err, &re) && re.Kind == resolver.ModuleNotFound,
		errors.Is(err, resolver.ErrPackageNotFound),
		source.IsHydrationError(err, source.PackageMissing):
		return ClassMissingPackage, err.Error()
	case errors.Is(err, state.ErrVersionMismatch),
		source.IsHydrationError(err, source.VersionUnavailable):
		return ClassVersionMismatch, err.Error()
	case errors.Is(err, state.ErrObjectNotFound),
		source.IsHydrationError(err, source.ObjectMissing):
		return ClassMissingChildObject, err.Error()
	}

	return ClassUnrecoverable, err.Error()
}

func expectedSuccess(cmp *ComparisonResult) bool {
	return cmp != nil && cmp.ExpectedSuccess
}
