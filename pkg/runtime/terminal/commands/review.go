package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/resolver"
)

type MatchReviewCmd struct {
	env    *Env
	reject bool
	actor  string
	notes  string
}

func NewApproveCmd(env *Env) *cobra.Command {
	return newMatchReviewCmd(env, false)
}

func NewRejectCmd(env *Env) *cobra.Command {
	return newMatchReviewCmd(env, true)
}

func newMatchReviewCmd(env *Env, reject bool) *cobra.Command {
	mc := &MatchReviewCmd{env: env, reject: reject}
	cmd := &cobra.Command{
		Use:   "approve <match-id>",
		Short: "Approve a proposed match",
		Args:  cobra.ExactArgs(1),
		RunE:  mc.run,
	}
	if reject {
		cmd.Use = "reject <match-id>"
		cmd.Short = "Reject a proposed match"
	}
	addActorFlag(cmd, &mc.actor)
	cmd.Flags().StringVar(&mc.notes, "notes", "", "Reviewer notes")
	return cmd
}

func (mc *MatchReviewCmd) run(cmd *cobra.Command, args []string) error {
	a, err := mc.env.app()
	if err != nil {
		return err
	}

	actor := resolver.Actor{Name: mc.actor, Notes: mc.notes}
	var m *domain.Match
	if mc.reject {
		m, err = a.Resolver.RejectMatch(cmd.Context(), args[0], actor)
	} else {
		m, err = a.Resolver.ApproveMatch(cmd.Context(), args[0], actor)
	}
	if err != nil {
		return err
	}
	return mc.env.Reporter.Match(adapters.MapDomainMatchToApi(m))
}

type resolutionFlags struct {
	action string
	value  string
	notes  string
	actor  string
}

func (f *resolutionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.action, "action", "", "accept_source, accept_target, manual_value or ignore")
	cmd.Flags().StringVar(&f.value, "value", "", "Corrected amount for manual_value")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Resolution notes")
	addActorFlag(cmd, &f.actor)
	_ = cmd.MarkFlagRequired("action")
}

func (f *resolutionFlags) resolution() (resolver.Resolution, error) {
	res := resolver.Resolution{
		Action: domain.ResolutionAction(f.action),
		Notes:  f.notes,
		Actor:  f.actor,
	}
	if f.value != "" {
		v, err := decimal.NewFromString(f.value)
		if err != nil {
			return res, fmt.Errorf("%w: invalid value %q", domain.ErrInvalidInput, f.value)
		}
		res.ManualValue = decimal.NewNullDecimal(v)
	}
	return res, nil
}

func NewResolveCmd(env *Env) *cobra.Command {
	flags := &resolutionFlags{}
	cmd := &cobra.Command{
		Use:   "resolve <discrepancy-id>",
		Short: "Resolve one discrepancy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			res, err := flags.resolution()
			if err != nil {
				return err
			}
			d, err := a.Resolver.ResolveDiscrepancy(cmd.Context(), args[0], res)
			if err != nil {
				return err
			}
			return env.Reporter.Discrepancy(adapters.MapDomainDiscrepancyToApi(d))
		},
	}
	flags.register(cmd)
	return cmd
}

func NewBulkResolveCmd(env *Env) *cobra.Command {
	flags := &resolutionFlags{}
	cmd := &cobra.Command{
		Use:   "bulk-resolve <session-id> <discrepancy-id>...",
		Short: "Resolve several discrepancies of a session at once, all or nothing",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			res, err := flags.resolution()
			if err != nil {
				return err
			}
			n, err := a.Resolver.BulkResolve(cmd.Context(), args[0], args[1:], res)
			if err != nil {
				return err
			}
			return env.Reporter.Count("resolved", n)
		},
	}
	flags.register(cmd)
	return cmd
}
