package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var forceReprioritize bool

var reprioritizeCmd = &cobra.Command{
	Use:   "reprioritize",
	Short: "Recalculate priority for every open ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Priority.RecalculateAll(cmd.Context(), forceReprioritize)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	reprioritizeCmd.Flags().BoolVar(&forceReprioritize, "force", false, "record an audit entry even when the level does not change")
	rootCmd.AddCommand(reprioritizeCmd)
}
