package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/migration"
	"github.com/smallbiznis/subtrack/internal/notification"
	"github.com/smallbiznis/subtrack/internal/observability"
	"github.com/smallbiznis/subtrack/internal/pricehistory"
	"github.com/smallbiznis/subtrack/internal/reminder"
	"github.com/smallbiznis/subtrack/internal/server"
	"github.com/smallbiznis/subtrack/internal/subscription"
	"github.com/smallbiznis/subtrack/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const oneShotTimeout = 2 * time.Minute

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "subtrack",
		Short:         "Track recurring subscriptions and remind before payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCommand(),
		schedulerCommand(),
		sweepCommand(),
		migrateCommand(),
	)
	return root
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				migration.Module,
				domainModules(),
				reminder.Lifecycle,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func schedulerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				migration.Module,
				domainModules(),
				reminder.Lifecycle,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func sweepCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and print how many reminders were created",
		RunE: func(cmd *cobra.Command, args []string) error {
			var day *time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
				}
				d := clock.DateOf(parsed)
				day = &d
			}

			var (
				svc *reminder.Service
				clk clock.Clock
			)
			sweep := func(ctx context.Context) error {
				today := clk.Today()
				if day != nil {
					today = *day
				}
				result, err := svc.SweepDay(ctx, today)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Created)
				return nil
			}
			return runOnce(cmd.Context(), sweep,
				migration.Module,
				domainModules(),
				fx.Populate(&svc, &clk),
			)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "calendar day to sweep (YYYY-MM-DD), defaults to today")
	return cmd
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), func(context.Context) error { return nil }, migration.Module)
		},
	}
}

// runOnce starts a short-lived application, runs fn and stops it again.
func runOnce(parent context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(append([]fx.Option{coreModules()}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, oneShotTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func domainModules() fx.Option {
	return fx.Options(
		pricehistory.Module,
		notification.Module,
		subscription.Module,
		reminder.Module,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
