package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/easynet-cn/batata/cmd/batata-cli/internal/credentials"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current login status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		creds, err := store.Load()
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("Authentication Status")
		pterm.Info.Printf("Server: %s\n", creds.ServerURL)
		pterm.Info.Printf("User:   %s\n", creds.Username)
		if creds.GlobalAdmin {
			pterm.Info.Println("Role:   global admin")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
