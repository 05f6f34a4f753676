// internal/cli/get.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Capture the generated download link for one URL",
	Long: `Runs the full workflow for a single source URL: ensures the shared
browser session is logged in, submits the URL into the download form,
and prints the generated link. With --persist the file itself is also
downloaded into the output directory.`,
	Example: `  # Capture the generated link
  linkgen get https://example.com/asset.zip

  # Capture the link and download the file
  linkgen get https://example.com/asset.zip --persist -o ./downloads`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a := GetApp()

	res := a.Service.Extract(cmd.Context(), args[0])
	if !res.Success {
		return fmt.Errorf("extraction failed: %s", res.Error)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
