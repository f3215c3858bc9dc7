package replay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/reconstruct"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	objA = types.MustParseAddress("0xa1")
	objB = types.MustParseAddress("0xb1")
	objC = types.MustParseAddress("0xc1")
)

func summary(success bool, total uint64, changes ...types.ChangedObject) *types.EffectsSummary {
	return &types.EffectsSummary{
		Success:        success,
		Gas:            types.GasSummary{Total: total},
		ChangedObjects: changes,
	}
}

func localEffects(success bool, total uint64) *types.TransactionEffects {
	return &types.TransactionEffects{
		Success:    success,
		GasSummary: types.GasSummary{Total: total},
	}
}

func TestGasTolerance(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(1000), GasTolerance(1, 0))
	assert.Equal(t, uint64(750_000), GasTolerance(1, 750))
}

func TestCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		expected *types.EffectsSummary
		local    *types.TransactionEffects
		ok       bool
		reason   ReasonCode
	}{
		{
			name: "match",
			expected: summary(true, 5000,
				types.ChangedObject{ID: objA, Operation: types.OpMutated},
				types.ChangedObject{ID: objB, Operation: types.OpCreated, Transferred: true},
			),
			local: func() *types.TransactionEffects {
				e := localEffects(true, 5400)
				e.Mutated = []types.ObjectID{objA}
				e.Created = []types.ObjectID{objB}
				e.Transferred = []types.ObjectID{objB}

				return e
			}(),
			ok:     true,
			reason: ReasonOK,
		},
		{
			name:     "status",
			expected: summary(true, 5000),
			local:    localEffects(false, 5000),
			reason:   ReasonStatusMismatch,
		},
		{
			name:     "object set",
			expected: summary(true, 5000, types.ChangedObject{ID: objA, Operation: types.OpDeleted}),
			local: func() *types.TransactionEffects {
				e := localEffects(true, 5000)
				e.Deleted = []types.ObjectID{objC}

				return e
			}(),
			reason: ReasonObjectSetMismatch,
		},
		{
			name:     "gas",
			expected: summary(true, 5000),
			local:    localEffects(true, 7000),
			reason:   ReasonGasMismatch,
		},
		{
			name:     "status reported first",
			expected: summary(true, 5000),
			local:    localEffects(false, 90000),
			reason:   ReasonStatusMismatch,
		},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			res := Compare(c.expected, c.local, 1000)

			assert.Equal(t, c.ok, res.OK)
			assert.Equal(t, c.reason, res.ReasonCode)

			if c.ok {
				assert.Empty(t, res.Diffs)
			} else {
				assert.NotEmpty(t, res.Diffs)
			}
		})
	}
}

func TestCompareSetDiff(t *testing.T) {
	t.Parallel()

	local := localEffects(true, 5000)
	local.Deleted = []types.ObjectID{objC}

	res := Compare(summary(true, 5000, types.ChangedObject{ID: objA, Operation: types.OpDeleted}), local, 1000)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, "deleted", res.Diffs[0].Field)
	assert.Equal(t, []types.ObjectID{objA}, res.Diffs[0].Missing)
	assert.Equal(t, []types.ObjectID{objC}, res.Diffs[0].Extra)
}

func result(err *vm.ExecutionError, missing ...state.ChildKey) *ptb.Result {
	return &ptb.Result{
		Effects:         &types.TransactionEffects{Success: err == nil},
		Err:             err,
		MissingChildren: missing,
	}
}

func mismatch(expectedSuccess bool) *ComparisonResult {
	return &ComparisonResult{ReasonCode: ReasonStatusMismatch, ExpectedSuccess: expectedSuccess}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		diag  *reconstruct.Diagnostics
		res   *ptb.Result
		err   error
		cmp   *ComparisonResult
		class Class
	}{
		{
			name:  "parity",
			res:   result(nil),
			cmp:   &ComparisonResult{OK: true, ReasonCode: ReasonOK},
			class: ClassNone,
		},
		{
			name:  "success without chain effects",
			res:   result(nil),
			class: ClassNone,
		},
		{
			name:  "missing child",
			res:   result(&vm.ExecutionError{Kind: vm.KindAbort}, state.ChildKey{Parent: objA, Child: objB}),
			cmp:   mismatch(true),
			class: ClassMissingChildObject,
		},
		{
			name:  "missing runtime object",
			res:   result(&vm.ExecutionError{Kind: vm.KindMissingObject}),
			cmp:   mismatch(true),
			class: ClassMissingChildObject,
		},
		{
			name:  "linker",
			res:   result(&vm.ExecutionError{Kind: vm.KindLinkerError}),
			cmp:   mismatch(true),
			class: ClassMissingPackage,
		},
		{
			name:  "gas",
			res:   result(&vm.ExecutionError{Kind: vm.KindGasExhaustion}),
			cmp:   mismatch(true),
			class: ClassGasExhaustion,
		},
		{
			name:  "gas exhaustion the chain saw too",
			res:   result(&vm.ExecutionError{Kind: vm.KindGasExhaustion}),
			cmp:   &ComparisonResult{ReasonCode: ReasonGasMismatch},
			class: ClassUnrecoverable,
		},
		{
			name:  "closure incomplete",
			diag:  &reconstruct.Diagnostics{MissingPackages: []types.Address{objC}},
			res:   result(&vm.ExecutionError{Kind: vm.KindAbort}),
			cmp:   mismatch(true),
			class: ClassMissingPackage,
		},
		{
			name:  "abort where the chain succeeded",
			res:   result(&vm.ExecutionError{Kind: vm.KindAbort, AbortCode: 1}),
			cmp:   mismatch(true),
			class: ClassVersionMismatch,
		},
		{
			name:  "input missing",
			err:   fmt.Errorf("load input: %w", state.ErrObjectNotFound),
			class: ClassMissingChildObject,
		},
		{
			name:  "hydration",
			err:   source.ObjectMissingError(objA, 3),
			class: ClassMissingChildObject,
		},
		{
			name:  "version",
			err:   fmt.Errorf("input: %w", state.ErrVersionMismatch),
			class: ClassVersionMismatch,
		},
		{
			name:  "module",
			err:   &resolver.ResolutionError{Kind: resolver.ModuleNotFound, Module: types.ModuleID{Address: objA, Name: "m"}},
			class: ClassMissingPackage,
		},
		{
			name:  "other",
			err:   errors.New("boom"),
			class: ClassUnrecoverable,
		},
		{
			name:  "status only",
			res:   result(nil),
			cmp:   mismatch(false),
			class: ClassUnrecoverable,
		},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			class, hint := Classify(c.diag, c.res, c.err, c.cmp)

			assert.Equal(t, c.class, class)

			if class != ClassNone {
				assert.NotEmpty(t, hint)
			}
		})
	}
}

func TestClassRecoverable(t *testing.T) {
	t.Parallel()

	assert.False(t, ClassNone.Recoverable())
	assert.False(t, ClassUnrecoverable.Recoverable())
	assert.True(t, ClassMissingChildObject.Recoverable())
	assert.True(t, ClassGasExhaustion.Recoverable())
}
