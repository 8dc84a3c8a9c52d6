package terminal

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/config"
	"github.com/de-tools/recon-atlas/pkg/runtime/app"
	"github.com/de-tools/recon-atlas/pkg/runtime/terminal/commands"
	"github.com/de-tools/recon-atlas/pkg/runtime/terminal/export"
)

// CLI represents the command-line interface
type CLI struct {
	env     *commands.Env
	logOut  io.Writer
	rootCmd *cobra.Command

	configPath string
	format     string
	documents  string
	history    string
	storage    string
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// LogOutput receives structured logs. Defaults to stderr.
	LogOutput io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cli := &CLI{
		env:    &commands.Env{Reporter: export.NewReporter(opts.Output)},
		logOut: opts.LogOutput,
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree; cancelling ctx cancels a running session.
func (cli *CLI) ExecuteContext(ctx context.Context) error {
	err := cli.rootCmd.ExecuteContext(ctx)
	if closeErr := cli.close(); err == nil {
		err = closeErr
	}
	return err
}

// close releases the storage opened by setup, also when the command failed.
func (cli *CLI) close() error {
	if cli.env.App == nil {
		return nil
	}
	err := cli.env.App.Close()
	cli.env.App = nil
	return err
}

func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "recon",
		Short:             "Cross-document reconciliation of property financials",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cli.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVarP(&cli.format, "format", "o", "text", "Output format: text or json")
	flags.StringVar(&cli.documents, "documents", "", "JSON file with the extracted documents")
	flags.StringVar(&cli.history, "history", "", "INI file with historical rule pass rates")
	flags.StringVar(&cli.storage, "storage", "", "Storage backend: memory, sql or badger")

	cmd.AddCommand(commands.NewRulesCmd(cli.env))
	cmd.AddCommand(commands.NewRunCmd(cli.env))
	cmd.AddCommand(commands.NewSessionCmd(cli.env))
	cmd.AddCommand(commands.NewApproveCmd(cli.env))
	cmd.AddCommand(commands.NewRejectCmd(cli.env))
	cmd.AddCommand(commands.NewResolveCmd(cli.env))
	cmd.AddCommand(commands.NewBulkResolveCmd(cli.env))
	cmd.AddCommand(commands.NewCompleteCmd(cli.env))
	cmd.AddCommand(commands.NewCancelCmd(cli.env))

	return cmd
}

func (cli *CLI) setup(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(cli.format)
	if err != nil {
		return err
	}
	cli.env.Reporter.SetFormat(format)

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	if cli.documents != "" {
		cfg.Documents.File = cli.documents
	}
	if cli.history != "" {
		cfg.History.File = cli.history
	}
	if cli.storage != "" {
		cfg.Storage.Backend = config.StorageBackend(cli.storage)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := app.NewLogger(cfg.Log, cli.logOut)
	ctx := logger.WithContext(cmd.Context())
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	cli.env.App = a
	zerolog.Ctx(ctx).Debug().Str("command", cmd.CommandPath()).Msg("running command")
	return nil
}
