package commands

import (
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/api"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

func NewSessionCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and drive reconciliation sessions",
	}
	cmd.AddCommand(newSessionShowCmd(env))
	cmd.AddCommand(newSessionValidateCmd(env))
	cmd.AddCommand(newSessionHistoryCmd(env))
	return cmd
}

func newSessionShowCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its matches and discrepancies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			report, err := a.Sessions.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return env.Reporter.Report(adapters.MapDomainReportToApi(report))
		},
	}
}

func newSessionValidateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session-id>",
		Short: "Derive discrepancies and the health score of a finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			session, err := a.Sessions.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return env.Reporter.Session(adapters.MapDomainSessionToApi(session))
		},
	}
}

func newSessionHistoryCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "List the review audit trail of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			entries, err := a.Resolver.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := make([]api.AuditEntry, 0, len(entries))
			for _, e := range entries {
				out = append(out, adapters.MapDomainAuditToApi(e))
			}
			return env.Reporter.Audit(out)
		},
	}
}

type CompleteCmd struct {
	env           *Env
	actor         string
	justification string
}

func NewCompleteCmd(env *Env) *cobra.Command {
	cc := &CompleteCmd{env: env}
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Complete a validated session",
		Args:  cobra.ExactArgs(1),
		RunE:  cc.run,
	}
	addActorFlag(cmd, &cc.actor)
	cmd.Flags().StringVar(&cc.justification, "override", "", "Justification for completing with open discrepancies")
	return cmd
}

func (cc *CompleteCmd) run(cmd *cobra.Command, args []string) error {
	a, err := cc.env.app()
	if err != nil {
		return err
	}

	var override *domain.Override
	if cc.justification != "" {
		override = &domain.Override{Actor: cc.actor, Justification: cc.justification}
	}
	session, err := a.Sessions.Complete(cmd.Context(), args[0], override)
	if err != nil {
		return err
	}
	return cc.env.Reporter.Session(adapters.MapDomainSessionToApi(session))
}

func NewCancelCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.app()
			if err != nil {
				return err
			}
			session, err := a.Sessions.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return env.Reporter.Session(adapters.MapDomainSessionToApi(session))
		},
	}
}
