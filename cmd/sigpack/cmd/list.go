package cmd

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/packager"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List packaged strategies",
	Long:  `List every strategy bundle in the strategies directory with its version and description.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := settings()
	pkg, err := packager.New(cfg.StrategiesDir)
	if err != nil {
		return err
	}

	metas, err := pkg.List()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(metas)
	}

	if len(metas) == 0 {
		fmt.Printf("No strategies found in %s\n", pkg.OutputDir())
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Version", "Description", "Created")
	for _, meta := range metas {
		created := ""
		if !meta.CreatedAt.IsZero() {
			created = meta.CreatedAt.Format("2006-01-02 15:04")
		}
		table.Append(meta.Name, meta.Version, meta.Description, created)
	}
	table.Render()
	return nil
}
