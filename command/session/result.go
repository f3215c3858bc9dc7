package session

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type ExecutionResult struct {
	Success  bool                      `json:"success"`
	Error    string                    `json:"error,omitempty"`
	Packages []types.Address           `json:"packages,omitempty"`
	Effects  *types.TransactionEffects `json:"effects"`
}

func NewExecutionResult(res *ptb.Result) *ExecutionResult {
	r := &ExecutionResult{
		Success: res.Effects.Success,
		Effects: res.Effects,
	}

	if res.Err != nil {
		r.Error = res.Err.Error()
	}

	for _, pkg := range res.Packages {
		r.Packages = append(r.Packages, pkg.Address)
	}

	return r
}

func formatIDs(ids []types.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}

	return out
}

func (r *ExecutionResult) GetOutput() string {
	var buffer bytes.Buffer

	e := r.Effects

	status := "success"
	if !r.Success {
		status = "failure: " + r.Error
	}

	buffer.WriteString("\n[EXECUTION]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Status|%s", status),
		fmt.Sprintf("Gas Used|%d", e.GasUsed),
		fmt.Sprintf("Commands Succeeded|%d", e.CommandsSucceeded),
		fmt.Sprintf("Lamport Version|%d", e.LamportVersion),
		fmt.Sprintf("Events|%d", len(e.Events)),
	}))

	sections := []struct {
		name string
		ids  []types.ObjectID
	}{
		{"CREATED", e.Created},
		{"MUTATED", e.Mutated},
		{"DELETED", e.Deleted},
		{"TRANSFERRED", e.Transferred},
	}

	for _, s := range sections {
		if len(s.ids) == 0 {
			continue
		}

		buffer.WriteString(fmt.Sprintf("\n[%s]\n", s.name))
		buffer.WriteString(helper.FormatList(formatIDs(s.ids)))
		buffer.WriteString("\n")
	}

	if len(r.Packages) > 0 {
		pkgs := make([]string, 0, len(r.Packages))
		for _, p := range r.Packages {
			pkgs = append(pkgs, p.String())
		}

		buffer.WriteString("\n[PACKAGES]\n")
		buffer.WriteString(helper.FormatList(pkgs))
		buffer.WriteString("\n")
	}

	return buffer.String()
}
