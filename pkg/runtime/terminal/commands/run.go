package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

type RunCmd struct {
	env        *Env
	propertyID string
	periodID   string
	ruleCodes  []string
	noFuzzy    bool
	noInferred bool
	workers    int
	noValidate bool
}

func NewRunCmd(env *Env) *cobra.Command {
	rc := &RunCmd{env: env}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a reconciliation session, evaluate every rule and validate the result",
		Args:  cobra.NoArgs,
		RunE:  rc.run,
	}

	cmd.Flags().StringVar(&rc.propertyID, "property", "", "Property identifier")
	cmd.Flags().StringVar(&rc.periodID, "period", "", "Reporting period (YYYY-MM)")
	cmd.Flags().StringSliceVar(&rc.ruleCodes, "rules", nil, "Only evaluate these rule codes")
	cmd.Flags().BoolVar(&rc.noFuzzy, "no-fuzzy", false, "Disable fuzzy matching for this session")
	cmd.Flags().BoolVar(&rc.noInferred, "no-inferred", false, "Disable inferred matching for this session")
	cmd.Flags().IntVar(&rc.workers, "workers", 0, "Rule evaluation workers (default from config)")
	cmd.Flags().BoolVar(&rc.noValidate, "no-validate", false, "Stop after rule evaluation")

	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func (rc *RunCmd) run(cmd *cobra.Command, _ []string) error {
	a, err := rc.env.app()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	flags := a.Config.Features
	if rc.noFuzzy {
		flags.FuzzyMatching = false
	}
	if rc.noInferred {
		flags.InferredMatching = false
	}

	session, err := a.Sessions.Start(ctx, rc.propertyID, rc.periodID, domain.SessionOptions{
		Features:  flags,
		Workers:   rc.workers,
		RuleCodes: rc.ruleCodes,
	})
	if err != nil {
		return err
	}

	if _, err := a.Sessions.Run(ctx, session.ID); err != nil {
		var missing *domain.MissingDocumentError
		if errors.As(err, &missing) {
			return fmt.Errorf("session %s failed: %w", session.ID, err)
		}
		return err
	}

	if !rc.noValidate {
		if _, err := a.Sessions.Validate(ctx, session.ID); err != nil {
			return err
		}
	}

	report, err := a.Sessions.Report(ctx, session.ID)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Float64("health", report.Session.HealthScore).
		Msg("reconciliation finished")
	return rc.env.Reporter.Report(adapters.MapDomainReportToApi(report))
}
