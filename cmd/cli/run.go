package cli

import (
	"os/signal"
	"syscall"

	"helpdesk/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var autoMigrate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the HTTP API and the SLA monitor",
	RunE:  run,
}

func init() {
	runCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "migrate the database schema before serving")
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if autoMigrate {
		if err := app.Migrate(a.DB); err != nil {
			return err
		}
	}
	if a.Config.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return a.Serve(ctx)
}
