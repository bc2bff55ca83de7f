package cli

import (
	"fmt"
	"runtime"

	"helpdesk/internal/handlers"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X helpdesk/cmd/cli.Version=..." 注入
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var shortVersion bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Long: `Print the helpdeskctl build version, git commit and build time.
The same version string is reported by GET /health.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if shortVersion {
			fmt.Fprintln(out, Version)
			return
		}
		fmt.Fprintf(out, "helpdeskctl %s\n  commit:  %s\n  built:   %s\n  go:      %s %s/%s\n",
			Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&shortVersion, "short", false, "print the version number only")
	handlers.Version = Version
	rootCmd.AddCommand(versionCmd)
}
