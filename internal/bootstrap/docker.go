package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"chordring/internal/config"
)

// DockerBootstrap discovers ring peers by listing running containers
// carrying a discovery label on a shared Docker network, using the
// Docker engine API directly rather than shelling out to the docker
// CLI. Register/Deregister are no-ops: membership is derived entirely
// from container state, there is nothing separate to advertise.
type DockerBootstrap struct {
	cli     *client.Client
	label   string
	network string
	port    int
}

// NewDockerBootstrap connects to the Docker engine (via DOCKER_HOST, or
// cfg.DockerURL when set) and builds a DockerBootstrap over cfg.
func NewDockerBootstrap(cfg config.DockerBootstrapConfig) (*DockerBootstrap, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerURL != "" {
		opts = append(opts, client.WithHost(cfg.DockerURL))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: docker client: %w", err)
	}
	return &DockerBootstrap{cli: cli, label: cfg.Label, network: cfg.Network, port: cfg.Port}, nil
}

// Discover lists running containers carrying d.label and returns one
// dial address per container on d.network, addressed by container name
// (resolved through the Docker embedded DNS) rather than raw IP, so
// addresses remain valid across container restarts within the network.
func (d *DockerBootstrap) Discover(ctx context.Context) ([]string, error) {
	f := filters.NewArgs()
	if d.label != "" {
		f.Add("label", d.label)
	}
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{Filters: f})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: list containers: %w", err)
	}

	var addrs []string
	for _, c := range containers {
		if d.network != "" {
			if _, ok := c.NetworkSettings.Networks[d.network]; !ok {
				continue
			}
		}
		if len(c.Names) == 0 {
			continue
		}
		name := strings.TrimPrefix(c.Names[0], "/")
		addrs = append(addrs, fmt.Sprintf("%s:%d", name, d.port))
	}
	return addrs, nil
}

func (d *DockerBootstrap) Register(ctx context.Context, self SelfInfo) error { return nil }

func (d *DockerBootstrap) Deregister(ctx context.Context, self SelfInfo) error { return nil }
