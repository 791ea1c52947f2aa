package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/packager"
	"github.com/quantfold/sigpack/strategy"
)

var showSource bool

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a packaged strategy",
	Long:  `Load a strategy bundle, verify it compiles, and print its metadata and requirements.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showSource, "source", false, "print the strategy source instead of metadata")
}

func runShow(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg := settings()
	pkg, err := packager.New(cfg.StrategiesDir)
	if err != nil {
		return err
	}

	if showSource {
		source, err := os.ReadFile(filepath.Join(pkg.OutputDir(), name, strategy.SourceFile))
		if err != nil {
			return fmt.Errorf("read strategy source: %w", err)
		}
		fmt.Print(string(source))
		return nil
	}

	loaded, meta, err := pkg.Load(name)
	if err != nil {
		return err
	}
	defer loaded.Close()

	if IsJSONOutput() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(loaded.Info())
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", meta.ID)
	table.Append("Name", meta.Name)
	table.Append("Version", meta.Version)
	table.Append("Description", meta.Description)
	table.Append("Function", loaded.Info().FunctionName)
	table.Append("Created", meta.CreatedAt.Format(time.RFC3339))
	table.Append("Requirements", strings.Join(meta.Requirements, "\n"))
	table.Render()
	return nil
}
