package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/easynet-cn/batata/cmd/batata-cli/internal/client"
	"github.com/easynet-cn/batata/cmd/batata-cli/internal/credentials"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a batata-server and save the issued accessToken",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := loginUsername
		password := loginPassword
		if !nonInteractive {
			if username == "" {
				username, _ = pterm.DefaultInteractiveTextInput.Show("username")
			}
			if password == "" {
				password, _ = pterm.DefaultInteractiveTextInput.WithMask("*").Show("password")
			}
		}
		if username == "" || password == "" {
			return fmt.Errorf("username and password are required")
		}

		c := client.New(serverURL, "")
		result, err := c.Login(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.Save(&credentials.Credentials{
			ServerURL:   serverURL,
			Username:    username,
			AccessToken: result.AccessToken,
			GlobalAdmin: result.GlobalAdmin,
		}); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}

		pterm.Success.Printf("Logged in as %s against %s\n", username, serverURL)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username (prompted if omitted)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted if omitted)")
	rootCmd.AddCommand(loginCmd)
}
