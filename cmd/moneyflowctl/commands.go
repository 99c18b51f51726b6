package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	"moneyflow/internal/core"
	applog "moneyflow/internal/log"
	"moneyflow/internal/services"
	"moneyflow/internal/storage"
)

// options are the flags shared by every subcommand.
type options struct {
	dbPath string
	loc    *time.Location
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "moneyflowctl",
		Short:         "Operate a moneyflow ledger database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cli.LoadEnvFile()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")

	root.AddCommand(
		newRunDueCmd(opts),
		newBalanceCmd(opts),
		newAdvanceCmd(),
		newInitUserCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// load reads the environment configuration, applying flag overrides.
func (o *options) load() (*config.Config, *applog.Logger, error) {
	cfg := config.Load()
	if o.dbPath != "" {
		cfg.SQLiteDBPath = o.dbPath
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid RECURRING_LOCATION %q: %w", cfg.RecurringLocation, err)
	}
	o.loc = loc
	logger := applog.New(applog.Config{Level: cfg.SlogLevel(), Component: applog.ComponentCLI})
	return cfg, logger, nil
}

func (o *options) open() (*config.Config, *applog.Logger, *storage.SQLiteRepository, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, nil, err
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", cfg.SQLiteDBPath, err)
	}
	return cfg, logger, repo, nil
}

func newRunDueCmd(opts *options) *cobra.Command {
	var (
		owner int64
		all   bool
		today string
	)

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Generate ledger entries for every due recurring rule",
		Long: `Run the recurring-rule engine once, either for a single owner or for
every owner. With --today the run behaves as if it were that calendar day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope := core.ScopeAll
			if !all {
				if owner <= 0 {
					return fmt.Errorf("--owner must be a positive id")
				}
				scope = core.OwnerScope(owner)
			}

			cfg, logger, repo, err := opts.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			loc := opts.loc
			engineOpts := []services.EngineOption{services.WithLocation(loc)}
			if today != "" {
				d, err := core.ParseDate(today)
				if err != nil {
					return fmt.Errorf("--today: %w", err)
				}
				y, m, day := d.Date()
				fixed := time.Date(y, m, day, 12, 0, 0, 0, loc)
				engineOpts = append(engineOpts, services.WithClock(func() time.Time { return fixed }))
			}

			publisher, closePublisher := cli.NewPublisher(logger, cfg)
			defer closePublisher()

			engine := cli.BuildServices(repo, publisher, engineOpts...).Engine
			report, err := engine.RunDueRules(cmd.Context(), scope)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Run the rules of this owner only")
	cmd.Flags().BoolVar(&all, "all", false, "Run the rules of every owner")
	cmd.Flags().StringVar(&today, "today", "", "Evaluate as of this date (YYYY-MM-DD)")
	cmd.MarkFlagsMutuallyExclusive("owner", "all")
	cmd.MarkFlagsOneRequired("owner", "all")
	return cmd
}

func printReport(cmd *cobra.Command, r core.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s, today %s)\n", r.RunID, r.Scope, r.Today)
	fmt.Fprintf(out, "  generated %d, duplicates %d, skipped %d, failed %d, total %s\n",
		r.Count(core.OutcomeGenerated),
		r.Count(core.OutcomeDuplicate),
		r.Count(core.OutcomeSkipped),
		r.Count(core.OutcomeFailed),
		core.FormatAmount(r.Total()))
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("  rule %d: %s", o.RuleID, o.Status)
		if o.TransactionID != 0 {
			line += fmt.Sprintf(" -> transaction %d", o.TransactionID)
		}
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		fmt.Fprintln(out, line)
	}
}

func newBalanceCmd(opts *options) *cobra.Command {
	var (
		owner   int64
		account int64
		asOf    string
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the balance of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var at *core.Date
			if asOf != "" {
				d, err := core.ParseDate(asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				at = &d
			}

			_, _, repo, err := opts.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			balance, err := cli.BuildServices(repo, nil).Balances.GetAccountBalance(cmd.Context(), owner, account, at)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), core.FormatAmount(balance))
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner id")
	cmd.Flags().Int64Var(&account, "account", 0, "Account id")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Only count entries dated on or before this date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance DATE FREQUENCY",
		Short: "Print the date one period after DATE",
		Long: `Print the next execution date for a recurring rule. FREQUENCY is one of
daily, weekly, monthly or yearly; monthly and yearly steps clamp to the
last day of shorter months.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := core.ParseDate(args[0])
			if err != nil {
				return err
			}
			next, err := core.Advance(d, core.Frequency(strings.ToLower(args[1])))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
}

func newInitUserCmd(opts *options) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "init-user",
		Short: "Create the default accounts and categories of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner <= 0 {
				return fmt.Errorf("--owner must be a positive id")
			}
			_, _, repo, err := opts.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			created, err := services.NewDefaultDataInitializer(repo).Initialize(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized owner %d\n", owner)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Owner %d already initialized\n", owner)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			logger.Debug("Migrations applied", "path", cfg.SQLiteDBPath, "version", version, "dirty", dirty)
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d\n", version)
			return nil
		},
	}
}
