package commands

import (
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/api"
)

type RulesCmd struct {
	env         *Env
	enabledOnly bool
}

func NewRulesCmd(env *Env) *cobra.Command {
	rc := &RulesCmd{env: env}
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the matching rules",
		Args:  cobra.NoArgs,
		RunE:  rc.run,
	}
	cmd.Flags().BoolVar(&rc.enabledOnly, "enabled", false, "Only list enabled rules")
	return cmd
}

func (rc *RulesCmd) run(cmd *cobra.Command, _ []string) error {
	a, err := rc.env.app()
	if err != nil {
		return err
	}

	list := a.Registry.List()
	if rc.enabledOnly {
		list = a.Registry.Enabled()
	}
	out := make([]api.Rule, 0, len(list))
	for _, r := range list {
		out = append(out, adapters.MapDomainRuleToApi(r))
	}
	return rc.env.Reporter.Rules(out)
}
