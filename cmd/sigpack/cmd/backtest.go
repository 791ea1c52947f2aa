package cmd

import (
	"fmt"
	"math"
	"os"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/internal/schema"
	"github.com/quantfold/sigpack/packager"
)

var backtestDataPath string

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest <name>",
	Short: "Run a strategy against historical OHLCV data",
	Long:  `Load a strategy bundle, feed it a JSON array of OHLCV records, and report the signal-driven equity curve. Each bar's signal is the position held over the following bar.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestDataPath, "data", "", "path to a JSON array of OHLCV records (required)")
	_ = backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	name := args[0]

	raw, err := os.ReadFile(backtestDataPath)
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	var records []schema.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("parse data file: %w", err)
	}

	frame, err := schema.FromRecords(records)
	if err != nil {
		return err
	}

	cfg := settings()
	pkg, err := packager.New(cfg.StrategiesDir)
	if err != nil {
		return err
	}
	loaded, meta, err := pkg.Load(name)
	if err != nil {
		return err
	}
	defer loaded.Close()

	signals, err := loaded.Run(frame)
	if err != nil {
		return err
	}

	closes, ok := frame.Column("close")
	if !ok {
		return fmt.Errorf("data has no close column")
	}

	result := computeEquity(signals, closes)

	if IsJSONOutput() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{
			"strategy":     meta.Name,
			"bars":         len(closes),
			"trades":       result.Trades,
			"final_equity": result.FinalEquity,
			"return_pct":   result.ReturnPct,
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Strategy", meta.Name)
	table.Append("Bars", fmt.Sprintf("%d", len(closes)))
	table.Append("Trades", fmt.Sprintf("%d", result.Trades))
	table.Append("Final equity", result.FinalEquity)
	table.Append("Return", result.ReturnPct+"%")
	table.Render()
	return nil
}

type equityResult struct {
	Trades      int
	FinalEquity string
	ReturnPct   string
}

// computeEquity compounds per-bar returns weighted by the previous bar's
// signal. NaN signals and non-positive closes are treated as flat.
func computeEquity(signals, closes []float64) equityResult {
	one := decimal.NewFromInt(1)
	equity := one
	trades := 0
	prevPosition := 0.0

	for i := 1; i < len(closes) && i <= len(signals); i++ {
		position := signals[i-1]
		if math.IsNaN(position) {
			position = 0
		}
		if position != prevPosition {
			trades++
			prevPosition = position
		}
		if position == 0 || closes[i-1] <= 0 || math.IsNaN(closes[i]) || math.IsNaN(closes[i-1]) {
			continue
		}
		barReturn := decimal.NewFromFloat(closes[i]).
			Sub(decimal.NewFromFloat(closes[i-1])).
			Div(decimal.NewFromFloat(closes[i-1])).
			Mul(decimal.NewFromFloat(position))
		equity = equity.Mul(one.Add(barReturn))
	}

	returnPct := equity.Sub(one).Mul(decimal.NewFromInt(100))
	return equityResult{
		Trades:      trades,
		FinalEquity: equity.Round(6).String(),
		ReturnPct:   returnPct.Round(4).String(),
	}
}
