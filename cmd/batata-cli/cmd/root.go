package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easynet-cn/batata/cmd/batata-cli/internal/client"
)

var (
	serverURL      string
	nonInteractive bool
	bearerToken    string
	clientProvider *client.Provider
)

var rootCmd = &cobra.Command{
	Use:   "batata-cli",
	Short: "batata-cli - client for the batata discovery & config server",
	Long: `batata-cli is the command-line client for batata. Use it to log in,
publish and query configuration, and inspect the service registry.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("BATATA_NON_INTERACTIVE") == "1" {
			nonInteractive = true
		}
		if bearerToken == "" {
			if env := os.Getenv("BATATA_ACCESS_TOKEN"); env != "" {
				bearerToken = env
			}
		}

		clientProvider = client.NewProvider(serverURL)
		if bearerToken != "" {
			clientProvider.SetBearerToken(bearerToken)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8848", "batata-server HTTP admin URL")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "disable interactive prompts (also via BATATA_NON_INTERACTIVE=1)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer accessToken, bypassing the credential store (also via BATATA_ACCESS_TOKEN)")
}
