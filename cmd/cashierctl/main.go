// Command cashierctl runs maintenance tasks against the checkout database:
// schema migration, webhook replay and order listing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/cashier-stripe/internal/app"
	notificationlog "github.com/fatflowers/cashier-stripe/internal/app/service/notification_log"
	"github.com/fatflowers/cashier-stripe/internal/platform/db"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "cashierctl",
		Short:         "Maintenance tool for the cashier checkout service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(ordersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp builds the service graph without the HTTP server, fills targets
// and runs fn between start and stop.
func withApp(ctx context.Context, fn func() error, targets ...any) error {
	a := fx.New(
		app.ServiceModule,
		db.ClientModule,
		// Log rows must be written before the process exits.
		fx.Decorate(func(gdb *gorm.DB, log *zap.SugaredLogger) *notificationlog.Service {
			return notificationlog.NewSync(gdb, log)
		}),
		fx.Populate(targets...),
		fx.NopLogger,
	)
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	runErr := fn()

	stopCtx, cancel2 := context.WithTimeout(context.WithoutCancel(ctx), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				gdb *gorm.DB
				log *zap.SugaredLogger
			)
			return withApp(cmd.Context(), func() error {
				return db.AutoMigrate(log, gdb)
			}, &gdb, &log)
		},
	}
}
