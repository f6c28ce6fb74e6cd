package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/easynet-cn/batata/cmd/batata-cli/internal/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the saved accessToken",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		if err := store.Delete(); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
		pterm.Success.Println("Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
