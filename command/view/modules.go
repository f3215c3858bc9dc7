package view

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

const allFlag = "all"

var withFramework bool

func modulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Lists the modules loaded in the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return session.View(cmd, func(env *sandbox.Env) (command.CommandResult, error) {
				return NewModulesResult(env, withFramework), nil
			})
		},
	}

	cmd.Flags().BoolVar(
		&withFramework,
		allFlag,
		false,
		"include the bundled framework modules",
	)

	return cmd
}

func NewModulesResult(env *sandbox.Env, withFramework bool) *ModulesResult {
	res := &ModulesResult{Modules: []types.ModuleID{}}

	for _, m := range env.Resolver().Modules() {
		if !withFramework && m.Address.IsFramework() {
			continue
		}

		res.Modules = append(res.Modules, m)
	}

	return res
}
