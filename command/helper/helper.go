package helper

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/spf13/cobra"
)

// FormatList formats a list into a string
func FormatList(in []string) string {
	if len(in) == 0 {
		return "[]"
	}

	return "- " + strings.Join(in, "\n- ")
}

// FormatKV formats "key|value" rows into aligned columns
func FormatKV(in []string) string {
	var buf bytes.Buffer

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	for _, row := range in {
		key, value, _ := strings.Cut(row, "|")
		_, _ = fmt.Fprintf(w, "%s\t= %s\n", key, value)
	}

	_ = w.Flush()

	return buf.String()
}

// RegisterJSONOutputFlag registers the --json output setting for all child commands
func RegisterJSONOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(
		command.JSONOutputFlag,
		false,
		"get all outputs in json format (default false)",
	)
}

// RegisterPprofFlag registers the --pprof and --pprof-address settings
func RegisterPprofFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(
		command.PprofFlag,
		false,
		"enable the pprof server",
	)

	cmd.PersistentFlags().String(
		command.PprofAddressFlag,
		command.DefaultPprofAddress,
		"the address the pprof server listens on",
	)
}

// RegisterGlobalFlags registers the settings every sandbox command reads
func RegisterGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(
		command.ConfigFlag,
		"",
		"the path to a .hcl or .json config file",
	)

	cmd.PersistentFlags().String(
		command.HomeFlag,
		"",
		"the cache root (default $SUI_SANDBOX_HOME or ~/.sui-sandbox)",
	)

	cmd.PersistentFlags().String(
		command.LogLevelFlag,
		command.DefaultLogLevel,
		"the log level for console output",
	)

	cmd.PersistentFlags().String(
		command.PrometheusFlag,
		"",
		"the address to serve prometheus metrics on, disabled when empty",
	)
}

// SetRequiredFlags marks the given flags as required
func SetRequiredFlags(cmd *cobra.Command, requiredFlags []string) {
	for _, requiredFlag := range requiredFlags {
		_ = cmd.MarkFlagRequired(requiredFlag)
	}
}
