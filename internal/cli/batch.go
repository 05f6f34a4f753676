// internal/cli/batch.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/link-makers/linkgen/pkg/models"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <url>...",
	Short: "Capture generated links for several URLs over one session",
	Long: `Processes the given source URLs sequentially over one shared
authenticated session, resetting the form between items. A failure on
one URL never aborts the rest. Results are printed as JSON when all
items finish.`,
	Example: `  # Capture links for three URLs
  linkgen batch https://a.example/x.zip https://b.example/y.zip https://c.example/z.zip

  # Download the files as well
  linkgen batch --persist -o ./downloads https://a.example/x.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	a := GetApp()

	deduped, err := a.Orchestrator.Prepare(args)
	if err != nil {
		return err
	}

	if err := a.Service.EnsureSession(cmd.Context()); err != nil {
		return fmt.Errorf("could not establish session: %w", err)
	}

	bar := newProgressBar(len(deduped), "Processing URLs")

	results := make([]*models.ExtractionResult, 0, len(deduped))
	failed := 0
	for i, u := range deduped {
		res := a.Service.Extract(cmd.Context(), u)
		results = append(results, res)
		if !res.Success {
			failed++
		}
		bar.Add(1)

		if i < len(deduped)-1 {
			if err := a.Service.Reset(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "warning: form reset failed: %v\n", err)
			}
		}
	}
	fmt.Fprintln(os.Stderr)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d URLs failed", failed, len(deduped))
	}
	return nil
}

func newProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
