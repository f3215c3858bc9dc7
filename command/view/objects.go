package view

import (
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

const typeFlag = "type"

var typePrefix string

func objectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Lists the live objects of the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return session.View(cmd, func(env *sandbox.Env) (command.CommandResult, error) {
				return NewObjectsResult(env, typePrefix), nil
			})
		},
	}

	cmd.Flags().StringVar(
		&typePrefix,
		typeFlag,
		"",
		"only list objects whose type starts with the prefix",
	)

	return cmd
}

// normalizePrefix expands a short address in a type prefix, so 0x2::coin
// matches the canonical form
func normalizePrefix(prefix string) string {
	addr, rest, ok := strings.Cut(prefix, "::")
	if !ok {
		return prefix
	}

	long, err := types.NormalizeAddress(addr)
	if err != nil {
		return prefix
	}

	return long + "::" + rest
}

func NewObjectsResult(env *sandbox.Env, prefix string) *ObjectsResult {
	res := &ObjectsResult{Objects: []ObjectRow{}}
	prefix = normalizePrefix(prefix)

	for _, o := range env.Objects() {
		typ := o.Type.String()
		if prefix != "" && !strings.HasPrefix(typ, prefix) {
			continue
		}

		res.Objects = append(res.Objects, ObjectRow{
			ID:      o.ID,
			Version: o.Version,
			Type:    typ,
			Owner:   o.EffectiveOwner().String(),
		})
	}

	return res
}
