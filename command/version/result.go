package version

import (
	"fmt"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
)

type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

func (r *VersionResult) GetOutput() string {
	var s strings.Builder

	s.WriteString("Sui Sandbox\n")
	s.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Version|%s", orUnknown(r.Version)),
		fmt.Sprintf("Commit|%s", orUnknown(r.Commit)),
		fmt.Sprintf("Build Time|%s", orUnknown(r.BuildTime)),
	}))

	return s.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}

	return s
}
