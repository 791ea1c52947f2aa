package deploy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// composeFile mirrors the subset of the compose schema the deployment needs.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Build         string             `yaml:"build"`
	ContainerName string             `yaml:"container_name"`
	Ports         []string           `yaml:"ports"`
	Restart       string             `yaml:"restart"`
	Healthcheck   composeHealthcheck `yaml:"healthcheck"`
}

type composeHealthcheck struct {
	Test        []string `yaml:"test"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period"`
}

// renderCompose builds the orchestration file binding the image to the given
// port with an unless-stopped restart policy and the shared probe schedule.
func renderCompose(name string, port int) ([]byte, error) {
	serviceName := strings.ReplaceAll(name, "_", "-")
	file := composeFile{
		Services: map[string]composeService{
			serviceName: {
				Build:         ".",
				ContainerName: name,
				Ports:         []string{fmt.Sprintf("%d:%d", port, port)},
				Restart:       "unless-stopped",
				Healthcheck: composeHealthcheck{
					Test: []string{
						"CMD", "wget", "-q", "-O", "/dev/null",
						fmt.Sprintf("http://localhost:%d/health", port),
					},
					Interval:    healthInterval,
					Timeout:     healthTimeout,
					Retries:     healthRetries,
					StartPeriod: healthStartPeriod,
				},
			},
		},
	}
	return yaml.Marshal(file)
}
