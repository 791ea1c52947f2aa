package deploy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const healthWaitMaxInterval = 5 * time.Second

// WaitHealthy polls the deployment's /health endpoint with exponential
// backoff until it answers 200 or the context is done. Intended for use after
// run.sh has started the container.
func WaitHealthy(ctx context.Context, baseURL string) error {
	target := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/health"
	client := &http.Client{Timeout: 5 * time.Second}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = healthWaitMaxInterval

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait healthy: %w", ctx.Err())
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("wait healthy: %w", err)
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = healthWaitMaxInterval
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait healthy: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
}
