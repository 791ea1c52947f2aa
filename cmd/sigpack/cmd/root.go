package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quantfold/sigpack/config"
)

var (
	cfgFile        string
	strategiesDir  string
	deploymentsDir string
	outputFormat   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sigpack",
	Short: "Package, run and deploy trading strategies",
	Long:  `sigpack packages JavaScript trading strategies into portable bundles, runs them against OHLCV data, and generates self-contained Docker deployments.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sigpack/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&strategiesDir, "strategies-dir", "", "bundle directory (default from config or ./strategies)")
	rootCmd.PersistentFlags().StringVar(&deploymentsDir, "deployments-dir", "", "deployment directory (default from config or ./deployments)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".sigpack"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SIGPACK")
	viper.AutomaticEnv()

	_ = viper.BindEnv("strategies_dir", "SIGPACK_STRATEGIES_DIR")
	_ = viper.BindEnv("deployments_dir", "SIGPACK_DEPLOYMENTS_DIR")
	_ = viper.ReadInConfig()
}

// settings resolves the effective configuration: defaults, then environment,
// then config file, then explicit flags.
func settings() config.Settings {
	cfg := config.FromEnv()
	if v := viper.GetString("strategies_dir"); v != "" {
		cfg.StrategiesDir = v
	}
	if v := viper.GetString("deployments_dir"); v != "" {
		cfg.DeploymentsDir = v
	}
	if v := viper.GetInt("port"); v > 0 {
		cfg = config.Apply(cfg, config.WithPort(v))
	}
	if v := viper.GetString("runtime_version"); v != "" {
		cfg.RuntimeVersion = v
	}
	return config.Apply(cfg,
		config.WithStrategiesDir(strategiesDir),
		config.WithDeploymentsDir(deploymentsDir),
	)
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
