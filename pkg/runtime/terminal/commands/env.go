package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/runtime/app"
	"github.com/de-tools/recon-atlas/pkg/runtime/terminal/export"
)

// Env is filled in by the root command before any subcommand runs.
type Env struct {
	App      *app.App
	Reporter *export.Reporter
}

func (e *Env) app() (*app.App, error) {
	if e.App == nil {
		return nil, fmt.Errorf("application is not initialized")
	}
	return e.App, nil
}

func addActorFlag(cmd *cobra.Command, actor *string) {
	cmd.Flags().StringVar(actor, "actor", os.Getenv("USER"), "Reviewer recorded in the audit trail")
}
