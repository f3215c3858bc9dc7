package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// ReportDiagnostics explains what the replay could not hydrate
type ReportDiagnostics struct {
	MissingInputObjects []types.ObjectVersion `json:"missing_input_objects"`
	MissingPackages     []types.Address       `json:"missing_packages"`
	Hints               []string              `json:"hints"`
}

// Report is the machine readable result of a replay
type Report struct {
	RunID        string                    `json:"run_id"`
	Digest       types.Digest              `json:"digest"`
	Success      bool                      `json:"success"`
	LocalSuccess bool                      `json:"local_success"`
	Outcome      string                    `json:"outcome"`
	Diagnostics  ReportDiagnostics         `json:"diagnostics"`
	Comparison   *ComparisonResult         `json:"comparison,omitempty"`
	Effects      *types.TransactionEffects `json:"effects"`
	Attempts     []Attempt                 `json:"attempts"`
	Error        string                    `json:"error,omitempty"`
}

func NewReport(o *Outcome) *Report {
	r := &Report{
		RunID:    o.RunID,
		Digest:   o.Digest,
		Success:  o.Success(),
		Outcome:  o.Class.label(),
		Attempts: o.Attempts,
		Diagnostics: ReportDiagnostics{
			MissingInputObjects: []types.ObjectVersion{},
			MissingPackages:     []types.Address{},
			Hints:               []string{},
		},
		Comparison: o.Comparison,
	}

	if o.Result != nil {
		r.Effects = o.Result.Effects
		r.LocalSuccess = o.Result.Effects.Success
	}

	if o.Err != nil {
		r.Error = o.Err.Error()
	}

	if d := o.Diagnostics; d != nil {
		r.Diagnostics.MissingInputObjects = append(r.Diagnostics.MissingInputObjects, d.MissingObjects...)
		r.Diagnostics.MissingPackages = append(r.Diagnostics.MissingPackages, d.MissingPackages...)

		if len(d.Patched) > 0 {
			r.Diagnostics.Hints = append(r.Diagnostics.Hints, fmt.Sprintf("patched version fields of %d objects", len(d.Patched)))
		}

		for _, id := range d.Synthesized {
			r.Diagnostics.Hints = append(r.Diagnostics.Hints, "synthesized system object "+id.String())
		}
	}

	for _, a := range o.Attempts {
		if a.Hint != "" {
			r.Diagnostics.Hints = append(r.Diagnostics.Hints, fmt.Sprintf("attempt %d: %s", a.Number, a.Hint))
		}
	}

	r.Diagnostics.Hints = append(r.Diagnostics.Hints, o.Hints...)

	return r
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

// Summary renders the attempt chain for humans
func (r *Report) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "transaction %s (run %s)\n", r.Digest, r.RunID)

	for _, a := range r.Attempts {
		class := a.Class.label()
		fmt.Fprintf(&sb, "  attempt %d [%s] local_success=%t outcome=%s", a.Number, a.Level, a.LocalSuccess, class)

		if a.Prefetched > 0 {
			fmt.Fprintf(&sb, " prefetched=%d", a.Prefetched)
		}

		if a.Hint != "" {
			fmt.Fprintf(&sb, " (%s)", a.Hint)
		}

		sb.WriteString("\n")
	}

	if c := r.Comparison; c != nil {
		fmt.Fprintf(&sb, "  parity: %s", c.ReasonCode)

		for _, d := range c.Diffs {
			switch {
			case d.Expected != "" || d.Actual != "":
				fmt.Fprintf(&sb, "; %s expected %s got %s", d.Field, d.Expected, d.Actual)
			default:
				fmt.Fprintf(&sb, "; %s missing %d extra %d", d.Field, len(d.Missing), len(d.Extra))
			}
		}

		sb.WriteString("\n")
	}

	if n := len(r.Diagnostics.MissingInputObjects); n > 0 {
		fmt.Fprintf(&sb, "  missing input objects: %d\n", n)
	}

	if n := len(r.Diagnostics.MissingPackages); n > 0 {
		fmt.Fprintf(&sb, "  missing packages: %d\n", n)
	}

	if r.Error != "" {
		fmt.Fprintf(&sb, "  error: %s\n", r.Error)
	}

	verdict := "FAILED"
	if r.Success {
		verdict = "OK"
	}

	fmt.Fprintf(&sb, "result: %s (%s)\n", verdict, r.Outcome)

	return sb.String()
}
