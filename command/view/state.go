package view

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/spf13/cobra"
)

func stateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Shows the session configuration and counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := helper.LoadConfig(cmd)
			if err != nil {
				return err
			}

			return session.View(cmd, func(env *sandbox.Env) (command.CommandResult, error) {
				return NewStateResult(env, cfg.HomeDir()), nil
			})
		},
	}
}

func NewStateResult(env *sandbox.Env, home string) *StateResult {
	res := &StateResult{
		Home:      home,
		Config:    env.Config(),
		Objects:   len(env.Objects()),
		Packages:  len(env.Packages()),
		Consensus: len(env.ConsensusLog().Entries()),
	}

	if path, ok := sandbox.FindSession(home); ok {
		res.Session = path
	}

	for _, m := range env.Resolver().Modules() {
		if !m.Address.IsFramework() {
			res.Modules++
		}
	}

	return res
}
