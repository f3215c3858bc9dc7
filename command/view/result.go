package view

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type ModulesResult struct {
	Modules []types.ModuleID `json:"modules"`
}

func (r *ModulesResult) GetOutput() string {
	var buffer bytes.Buffer

	names := make([]string, 0, len(r.Modules))
	for _, m := range r.Modules {
		names = append(names, m.String())
	}

	buffer.WriteString("\n[MODULES]\n")
	buffer.WriteString(helper.FormatList(names))
	buffer.WriteString("\n")

	return buffer.String()
}

type ObjectRow struct {
	ID      types.ObjectID `json:"id"`
	Version uint64         `json:"version"`
	Type    string         `json:"type"`
	Owner   string         `json:"owner"`
}

type ObjectsResult struct {
	Objects []ObjectRow `json:"objects"`
}

func (r *ObjectsResult) GetOutput() string {
	var buffer bytes.Buffer

	rows := make([]string, 0, len(r.Objects))
	for _, o := range r.Objects {
		rows = append(rows, fmt.Sprintf("%s|v%d %s %s", o.ID, o.Version, o.Type, o.Owner))
	}

	buffer.WriteString("\n[OBJECTS]\n")

	if len(rows) == 0 {
		buffer.WriteString("No objects found\n")
	} else {
		buffer.WriteString(helper.FormatKV(rows))
	}

	return buffer.String()
}

type StateResult struct {
	Home      string         `json:"home"`
	Session   string         `json:"session,omitempty"`
	Config    sandbox.Config `json:"config"`
	Objects   int            `json:"objects"`
	Packages  int            `json:"packages"`
	Modules   int            `json:"modules"`
	Consensus int            `json:"consensus_entries"`
}

func (r *StateResult) GetOutput() string {
	var buffer bytes.Buffer

	session := r.Session
	if session == "" {
		session = "none"
	}

	buffer.WriteString("\n[SANDBOX STATE]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Home|%s", r.Home),
		fmt.Sprintf("Session|%s", session),
		fmt.Sprintf("Sender|%s", r.Config.Sender),
		fmt.Sprintf("Epoch|%d", r.Config.Epoch),
		fmt.Sprintf("Timestamp (ms)|%d", r.Config.TimestampMs),
		fmt.Sprintf("Protocol Version|%d", r.Config.ProtocolVersion),
		fmt.Sprintf("Gas Price|%d", r.Config.GasPrice),
		fmt.Sprintf("Gas Budget|%d", r.Config.GasBudget),
		fmt.Sprintf("Objects|%d", r.Objects),
		fmt.Sprintf("Packages|%d", r.Packages),
		fmt.Sprintf("Modules|%d", r.Modules),
		fmt.Sprintf("Consensus Entries|%d", r.Consensus),
	}))

	return buffer.String()
}
