package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/packager"
)

var (
	packDescription  string
	packVersion      string
	packRequirements []string
	packMeta         []string
)

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack <name> <strategy.js>",
	Short: "Package a strategy source file into a bundle",
	Long:  `Compile and validate a JavaScript strategy module, then write it as a portable bundle under the strategies directory.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringVar(&packDescription, "description", "", "strategy description")
	packCmd.Flags().StringVar(&packVersion, "version", packager.DefaultVersion, "strategy version")
	packCmd.Flags().StringSliceVar(&packRequirements, "requirement", nil, "module requirement (repeatable); inferred from source when omitted")
	packCmd.Flags().StringSliceVar(&packMeta, "meta", nil, "custom metadata entry as key=value (repeatable)")
}

func runPack(cmd *cobra.Command, args []string) error {
	name, sourcePath := args[0], args[1]

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read strategy source: %w", err)
	}

	custom, err := parseMeta(packMeta)
	if err != nil {
		return err
	}

	cfg := settings()
	pkg, err := packager.New(cfg.StrategiesDir)
	if err != nil {
		return err
	}

	opts := []packager.SaveOption{
		packager.WithDescription(packDescription),
		packager.WithVersion(packVersion),
	}
	if len(packRequirements) > 0 {
		opts = append(opts, packager.WithRequirements(packRequirements))
	}
	if len(custom) > 0 {
		opts = append(opts, packager.WithCustomMetadata(custom))
	}

	bundlePath, err := pkg.Save(name, source, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("Strategy %q packaged at %s\n", name, bundlePath)
	return nil
}

func parseMeta(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	custom := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --meta entry %q, expected key=value", entry)
		}
		custom[strings.TrimSpace(key)] = value
	}
	return custom, nil
}
