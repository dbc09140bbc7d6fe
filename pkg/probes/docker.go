package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/homepanel/homepanel/pkg/types"
)

const dockerAPIBase = "http://docker/v1.41"

// DockerProbe implements ContainerProbe via the Docker Engine API over its
// Unix socket.
type DockerProbe struct {
	socket string
	client *http.Client
}

// NewDockerProbe creates a container probe for the given socket path
func NewDockerProbe(socket string) *DockerProbe {
	return &DockerProbe{
		socket: socket,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

// dockerContainer is one entry of /containers/json
type dockerContainer struct {
	ID     string   `json:"Id"`
	Names  []string `json:"Names"`
	Image  string   `json:"Image"`
	State  string   `json:"State"`
	Status string   `json:"Status"`
	Ports  []struct {
		IP          string `json:"IP"`
		PrivatePort uint16 `json:"PrivatePort"`
		PublicPort  uint16 `json:"PublicPort"`
		Type        string `json:"Type"`
	} `json:"Ports"`
}

// ListContainers returns every container, running ones first, each group
// sorted by name
func (p *DockerProbe) ListContainers(ctx context.Context) ([]types.Container, error) {
	if _, err := os.Stat(p.socket); err != nil {
		return nil, fmt.Errorf("%w: docker socket: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dockerAPIBase+"/containers/json?all=1", http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: docker: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: docker returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return parseContainerList(resp.Body)
}

func parseContainerList(r io.Reader) ([]types.Container, error) {
	var raw []dockerContainer
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode container list: %w", err)
	}

	containers := make([]types.Container, 0, len(raw))
	for _, c := range raw {
		out := types.Container{
			ID:     shortID(c.ID),
			Name:   containerName(c.Names),
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		}
		// Docker lists a published port once per address family.
		seen := make(map[string]bool)
		for _, port := range c.Ports {
			key := fmt.Sprintf("%d/%d/%s", port.PrivatePort, port.PublicPort, port.Type)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Ports = append(out.Ports, types.ContainerPort{
				PrivatePort: port.PrivatePort,
				PublicPort:  port.PublicPort,
				Type:        port.Type,
			})
		}
		sort.Slice(out.Ports, func(i, j int) bool { return out.Ports[i].PublicPort < out.Ports[j].PublicPort })
		containers = append(containers, out)
	}

	sort.SliceStable(containers, func(i, j int) bool {
		a, b := containers[i], containers[j]
		if a.Running() != b.Running() {
			return a.Running()
		}
		return a.Name < b.Name
	})
	return containers, nil
}

// containerName extracts a clean name from Docker container names (removes leading /).
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

var _ ContainerProbe = (*DockerProbe)(nil)
