// Package integration exercises the full bundle-to-deployment path inside
// Docker. The test builds the generated deployment image and drives its
// prediction API over the wire. Gated behind SIGPACK_DOCKER_TESTS=1 because
// the image build downloads modules and needs a Docker daemon.
package integration_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quantfold/sigpack/deploy"
	"github.com/quantfold/sigpack/packager"
)

const momentumSource = `
module.exports = {
  metadata: { name: "momentum", description: "integration fixture", version: "1.0.0" },
  signal: function momentum(data) {
    var close = data.close;
    var out = [];
    for (var i = 0; i < close.length; i++) {
      if (i === 0) { out.push(null); continue; }
      out.push(close[i] > close[i - 1] ? 1 : 0);
    }
    return out;
  }
};
`

func TestDeploymentServesPredictions(t *testing.T) {
	if os.Getenv("SIGPACK_DOCKER_TESTS") != "1" {
		t.Skip("set SIGPACK_DOCKER_TESTS=1 to run Docker integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	quiet := log.New(io.Discard, "", 0)

	pkg, err := packager.New(t.TempDir(), packager.WithLogger(quiet))
	require.NoError(t, err)
	bundleDir, err := pkg.Save("momentum", []byte(momentumSource))
	require.NoError(t, err)

	builder, err := deploy.NewBuilder(t.TempDir(), deploy.WithLogger(quiet))
	require.NoError(t, err)
	deployDir, err := builder.CreateDeployment("momentum", bundleDir)
	require.NoError(t, err)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:    deployDir,
				Dockerfile: "Dockerfile",
			},
			ExposedPorts: []string{"8000/tcp"},
			WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8000/tcp")
	require.NoError(t, err)
	baseURL := "http://" + host + ":" + strconv.Itoa(port.Int())

	require.NoError(t, deploy.WaitHealthy(ctx, baseURL))

	payload := map[string]any{
		"data": []map[string]any{
			{"timestamp": "2024-01-01T00:00:00Z", "close": 10.0},
			{"timestamp": "2024-01-02T00:00:00Z", "close": 11.0},
			{"timestamp": "2024-01-03T00:00:00Z", "close": 10.5},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Signals  []*float64     `json:"signals"`
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Len(t, decoded.Signals, 3)
	require.Nil(t, decoded.Signals[0])
	require.NotNil(t, decoded.Signals[1])
	require.Equal(t, 1.0, *decoded.Signals[1])
	require.Equal(t, 0.0, *decoded.Signals[2])
	require.Equal(t, "momentum", decoded.Metadata["name"])
}
