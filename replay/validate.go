package replay

import (
	"strconv"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/gas"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type ReasonCode string

const (
	ReasonOK                ReasonCode = "ok"
	ReasonStatusMismatch    ReasonCode = "status_mismatch"
	ReasonObjectSetMismatch ReasonCode = "object_set_mismatch"
	ReasonGasMismatch       ReasonCode = "gas_mismatch"
)

// Diff is one disagreement between local and on-chain effects. Set diffs
// list ids only seen on chain as Missing and ids only seen locally as
// Extra.
type Diff struct {
	Field    string           `json:"field"`
	Missing  []types.ObjectID `json:"missing,omitempty"`
	Extra    []types.ObjectID `json:"extra,omitempty"`
	Expected string           `json:"expected,omitempty"`
	Actual   string           `json:"actual,omitempty"`
}

// ComparisonResult is the parity verdict of one attempt
type ComparisonResult struct {
	OK              bool       `json:"ok"`
	Diffs           []Diff     `json:"diffs,omitempty"`
	ReasonCode      ReasonCode `json:"reason_code"`
	ExpectedSuccess bool       `json:"expected_success"`
	LocalSuccess    bool       `json:"local_success"`
	GasExpected     uint64     `json:"gas_expected"`
	GasLocal        uint64     `json:"gas_local"`
	GasTolerance    uint64     `json:"gas_tolerance"`
}

// GasTolerance is the gas difference explained by rounding at a protocol
// version and gas price
func GasTolerance(protocolVersion, price uint64) uint64 {
	if price == 0 {
		price = 1
	}

	return gas.Config(protocolVersion).RoundingStep * price
}

// Compare checks local effects against the on-chain summary: status, the
// created, mutated, deleted, wrapped and transferred sets, and gas within
// tolerance
func Compare(expected *types.EffectsSummary, local *types.TransactionEffects, tolerance uint64) *ComparisonResult {
	res := &ComparisonResult{
		ExpectedSuccess: expected.Success,
		LocalSuccess:    local.Success,
		GasExpected:     expected.Gas.Total,
		GasLocal:        local.GasSummary.Total,
		GasTolerance:    tolerance,
	}

	var reasons []ReasonCode

	if expected.Success != local.Success {
		res.Diffs = append(res.Diffs, Diff{
			Field:    "status",
			Expected: strconv.FormatBool(expected.Success),
			Actual:   strconv.FormatBool(local.Success),
		})
		reasons = append(reasons, ReasonStatusMismatch)
	}

	sets := []struct {
		field    string
		expected []types.ObjectID
		local    []types.ObjectID
	}{
		{"created", expected.Created(), local.Created},
		{"mutated", expected.Mutated(), local.Mutated},
		{"deleted", expected.Deleted(), local.Deleted},
		{"wrapped", expected.Wrapped(), local.Wrapped},
		{"transferred", expected.Transferred(), local.Transferred},
	}

	for _, s := range sets {
		missing, extra := symmetricDiff(s.expected, s.local)
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}

		res.Diffs = append(res.Diffs, Diff{Field: s.field, Missing: missing, Extra: extra})
		reasons = append(reasons, ReasonObjectSetMismatch)
	}

	if distance(res.GasExpected, res.GasLocal) > tolerance {
		res.Diffs = append(res.Diffs, Diff{
			Field:    "gas_used",
			Expected: strconv.FormatUint(res.GasExpected, 10),
			Actual:   strconv.FormatUint(res.GasLocal, 10),
		})
		reasons = append(reasons, ReasonGasMismatch)
	}

	res.OK = len(res.Diffs) == 0
	res.ReasonCode = ReasonOK

	if len(reasons) > 0 {
		res.ReasonCode = reasons[0]
	}

	return res
}

func symmetricDiff(expected, local []types.ObjectID) (missing, extra []types.ObjectID) {
	have := make(map[types.ObjectID]struct{}, len(local))
	for _, id := range local {
		have[id] = struct{}{}
	}

	want := make(map[types.ObjectID]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}

		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}

	for _, id := range local {
		if _, ok := want[id]; !ok {
			extra = append(extra, id)
		}
	}

	return types.SortObjectIDs(missing), types.SortObjectIDs(extra)
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}

	return b - a
}
