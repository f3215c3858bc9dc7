package pkg

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type PackageResult struct {
	*types.PackageData
}

func (r *PackageResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[PACKAGE]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Storage ID|%s", r.Address),
		fmt.Sprintf("Runtime ID|%s", r.RuntimeID()),
		fmt.Sprintf("Version|%d", r.Version),
	}))

	buffer.WriteString("\n[MODULES]\n")
	buffer.WriteString(helper.FormatList(r.ModuleNames()))
	buffer.WriteString("\n")

	if len(r.Linkage) > 0 {
		rows := make([]string, 0, len(r.Linkage))
		for _, l := range r.Linkage {
			rows = append(rows, fmt.Sprintf("%s|%s (v%d)", l.OriginalID, l.UpgradedID, l.UpgradedVersion))
		}

		buffer.WriteString("\n[LINKAGE]\n")
		buffer.WriteString(helper.FormatKV(rows))
	}

	return buffer.String()
}
