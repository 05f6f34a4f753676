// internal/cli/root.go
package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/link-makers/linkgen/internal/app"
	"github.com/link-makers/linkgen/internal/config"
)

// globalApp is initialized once per invocation by PersistentPreRunE.
var globalApp *app.Application

// GetApp retrieves the initialized Application.
func GetApp() *app.Application {
	return globalApp
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkgen",
	Short: "Generate and capture download links from stocip.com",
	Long: `Linkgen logs into stocip.com with a shared browser session, submits
source URLs into the download form, and captures the generated links.
Run "linkgen serve" for the HTTP API, or "linkgen get" / "linkgen batch"
for one-shot extractions.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Lazily initialize the application before running commands (avoid
	// starting it for -h/help)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if globalApp != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}

		globalApp = a
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if globalApp == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), globalApp.Config.ServerShutdown)
		defer cancel()
		if err := globalApp.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown reported an error")
		}
		globalApp = nil
	}
}
