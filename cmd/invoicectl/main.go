package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-invoicing/cmd/invoicectl/cli"
	"github.com/odyssey-erp/odyssey-invoicing/internal/app"
	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoicing/jobs"
)

// exitError carries a command exit code through cobra.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWith(code int) error {
	if code == cli.ExitOK {
		return nil
	}
	return exitError{code: code}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "invoicectl: %v\n", err)
		os.Exit(cli.ExitFailure)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operational tooling for the invoicing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newComputeCmd(), newFXCmd(), newJobsCmd())
	return root
}

func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newComputeCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:     "compute [document.json|-]",
		Short:   "Derive line prices and totals for a document",
		Example: `  # Compute a document, resolving the rate from the ECB feed
  invoicectl compute invoice.json

  # Read from stdin and rely on the conversion_rate in the document
  cat invoice.json | invoicectl compute - --offline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := cli.ComputeOptions{
				Source:  args[0],
				Locale:  cfg.Locale(),
				Timeout: cfg.FXLookupTimeout,
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
				Stdin:   cmd.InOrStdin(),
			}
			if !offline {
				provider := fx.NewECBProvider(cfg.FXProviderURL, cfg.FXHistoryURL, &http.Client{Timeout: cfg.FXLookupTimeout})
				opts.Resolver = fx.NewResolver(provider, nil, nil, app.NewLogger(cfg), fx.ResolverConfig{Timeout: cfg.FXLookupTimeout})
			}
			return exitWith(cli.ComputeCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not look up conversion rates")
	return cmd
}

func newFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Manage stored conversion rates",
	}

	withStore := func(cmd *cobra.Command, run func(*cli.FXOpsCLI) int) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := db.New(cmd.Context(), db.Options{DSN: cfg.PGDSN, MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		ops, err := cli.NewFXOpsCLI(fx.NewPGRepository(pool))
		if err != nil {
			return err
		}
		return exitWith(run(ops))
	}

	var validate cli.FXValidateOptions
	validateCmd := &cobra.Command{
		Use:     "validate",
		Short:   "Report business days without a stored rate",
		Example: `  invoicectl fx validate --currency USD --currency GBP --from 2025-03-01 --to 2025-03-31 --json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			validate.Stdout, validate.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return withStore(cmd, func(ops *cli.FXOpsCLI) int {
				return ops.ValidateCommand(cmd.Context(), validate)
			})
		},
	}
	validateCmd.Flags().StringSliceVar(&validate.Currencies, "currency", nil, "currency to check (repeatable)")
	validateCmd.Flags().StringVar(&validate.From, "from", "", "first day, YYYY-MM-DD")
	validateCmd.Flags().StringVar(&validate.To, "to", "", "last day, YYYY-MM-DD")
	validateCmd.Flags().BoolVar(&validate.JSONOutput, "json", false, "print JSON")

	var (
		imp   cli.FXImportOptions
		apply bool
	)
	importCmd := &cobra.Command{
		Use:   "import [rates.csv|-]",
		Short: "Load currency,date,rate rows into the rate store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp.Source = args[0]
			imp.Mode = cli.FXImportModeDry
			if apply {
				imp.Mode = cli.FXImportModeApply
			}
			imp.Stdout, imp.Stderr, imp.Stdin = cmd.OutOrStdout(), cmd.ErrOrStderr(), cmd.InOrStdin()
			return withStore(cmd, func(ops *cli.FXOpsCLI) int {
				return ops.ImportCommand(cmd.Context(), imp)
			})
		},
	}
	importCmd.Flags().BoolVar(&apply, "apply", false, "write the rates after confirmation")
	importCmd.Flags().BoolVar(&imp.JSONOutput, "json", false, "print JSON")

	cmd.AddCommand(validateCmd, importCmd)
	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	withJobs := func(run func(*cli.JobsCLI) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		helper := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer helper.Close()
		return run(helper)
	}

	var feed string
	refreshCmd := &cobra.Command{
		Use:   "refresh-rates",
		Short: "Enqueue an ECB rate refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(func(helper *cli.JobsCLI) error {
				info, err := helper.TriggerRefresh(cmd.Context(), feed)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
				return err
			})
		},
	}
	refreshCmd.Flags().StringVar(&feed, "feed", jobs.FeedDaily, "feed to read: daily or history")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(func(helper *cli.JobsCLI) error {
				stats, err := helper.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			})
		},
	}

	cmd.AddCommand(refreshCmd, statsCmd)
	return cmd
}
