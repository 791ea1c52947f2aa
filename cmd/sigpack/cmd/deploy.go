package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/deploy"
)

var (
	deployPort    int
	deployRuntime string
	deployBundle  string
	deployWaitURL string
	deployWaitFor time.Duration
)

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy <name>",
	Short: "Generate a Docker deployment for a strategy",
	Long:  `Copy a strategy bundle into a deployment directory together with a generated HTTP server, Dockerfile, compose file and helper scripts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().IntVar(&deployPort, "port", 0, "port the generated server listens on (default from config or 8000)")
	deployCmd.Flags().StringVar(&deployRuntime, "runtime", "", "Go version for the deployment image (default from config)")
	deployCmd.Flags().StringVar(&deployBundle, "bundle", "", "bundle path (default <strategies-dir>/<name>)")
	deployCmd.Flags().StringVar(&deployWaitURL, "wait-url", "", "after generating, poll this base URL until /health responds")
	deployCmd.Flags().DurationVar(&deployWaitFor, "wait-timeout", 2*time.Minute, "how long to wait for --wait-url")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg := settings()
	builder, err := deploy.NewBuilder(cfg.DeploymentsDir)
	if err != nil {
		return err
	}

	bundlePath := deployBundle
	if bundlePath == "" {
		bundlePath = filepath.Join(cfg.StrategiesDir, name)
	}

	port := deployPort
	if port == 0 {
		port = cfg.Port
	}
	runtime := deployRuntime
	if runtime == "" {
		runtime = cfg.RuntimeVersion
	}

	deployPath, err := builder.CreateDeployment(name, bundlePath,
		deploy.WithPort(port),
		deploy.WithRuntimeVersion(runtime),
	)
	if err != nil {
		return err
	}

	fmt.Printf("Deployment for %q created at %s\n", name, deployPath)
	fmt.Printf("Build and start it with:\n  cd %s && ./build.sh && ./run.sh\n", deployPath)

	if deployWaitURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), deployWaitFor)
	defer cancel()
	if err := deploy.WaitHealthy(ctx, deployWaitURL); err != nil {
		return fmt.Errorf("deployment did not become healthy: %w", err)
	}
	fmt.Printf("Deployment healthy at %s\n", deployWaitURL)
	return nil
}
