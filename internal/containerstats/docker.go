// Package containerstats collects per-container resource metrics from the
// local Docker Engine and joins them onto endpoint URIs for the stats
// handler.
//
// Grounded on original_source/src/domain/dockerstats.rs (which talks to the
// same Engine API through the Rust bollard crate) and on the Docker client
// usage pattern in other_examples' Docker-Sentinel agent.
package containerstats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// Stats is one container's resource snapshot, matching the field set the
// stats handler joins onto EndpointStats.
type Stats struct {
	CPUPercentage    float64
	MemoryUsage      uint64
	MemoryLimit      uint64
	MemoryPercentage float64
	NetworkRxBytes   uint64
	NetworkTxBytes   uint64
}

// Sensor reports current container stats keyed by the endpoint URI the
// container serves. Implementations must tolerate the container runtime
// being unreachable by returning an empty map rather than an error, per
// the stats handler's join-defaults-to-zero contract.
type Sensor interface {
	GetContainerStats(ctx context.Context) (map[string]Stats, error)
}

// NoopSensor reports no container stats. Used when no Docker host is
// configured, so the stats handler still runs with every entry defaulted
// to zero.
type NoopSensor struct{}

func (NoopSensor) GetContainerStats(context.Context) (map[string]Stats, error) {
	return map[string]Stats{}, nil
}

// DockerSensor reads container state and stats from a local Docker Engine.
type DockerSensor struct {
	cli *client.Client
}

// NewDockerSensor dials the Docker Engine at host (e.g. "unix:///var/run/docker.sock").
// An empty host lets the client fall back to its own defaults.
func NewDockerSensor(host string) (*DockerSensor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if strings.TrimSpace(host) != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("containerstats: dial docker: %w", err)
	}
	return &DockerSensor{cli: cli}, nil
}

// GetContainerStats lists running containers and fetches a one-shot stats
// sample for each, joining by the endpoint URI derived from the container's
// published port. Any per-container failure is skipped rather than failing
// the whole call; a daemon connection failure returns an empty map.
func (d *DockerSensor) GetContainerStats(ctx context.Context) (map[string]Stats, error) {
	out := make(map[string]Stats)

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return out, nil
	}

	for _, c := range containers {
		uri := endpointURIFor(c)
		if uri == "" {
			continue
		}
		stats, err := d.oneShotStats(ctx, c.ID)
		if err != nil {
			continue
		}
		out[uri] = stats
	}
	return out, nil
}

// endpointURIFor derives the backend URI a container serves from its first
// published host port, mirroring the port-suffix convention the original
// implementation used (there, the last "-"-separated segment of the image
// tag; here, the actual published port Docker reports).
func endpointURIFor(c container.Summary) string {
	for _, p := range c.Ports {
		if p.PublicPort != 0 {
			return fmt.Sprintf("http://localhost:%d", p.PublicPort)
		}
	}
	// Fall back to the original's image-tag-suffix convention when no port
	// is published (e.g. containers run with --network host).
	if idx := strings.LastIndex(c.Image, "-"); idx != -1 {
		if port, err := strconv.Atoi(c.Image[idx+1:]); err == nil {
			return fmt.Sprintf("http://localhost:%d", port)
		}
	}
	return ""
}

func (d *DockerSensor) oneShotStats(ctx context.Context, containerID string) (Stats, error) {
	reader, err := d.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return Stats{}, err
	}
	defer reader.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(reader.Body).Decode(&raw); err != nil {
		return Stats{}, err
	}

	return Stats{
		CPUPercentage:    calcCPUPercent(raw),
		MemoryUsage:      raw.MemoryStats.Usage,
		MemoryLimit:      raw.MemoryStats.Limit,
		MemoryPercentage: pct(raw.MemoryStats.Usage, raw.MemoryStats.Limit),
		NetworkRxBytes:   networkRx(raw),
		NetworkTxBytes:   networkTx(raw),
	}, nil
}

// calcCPUPercent reproduces the Docker-CLI style formula used by the
// original: (cpu_delta / system_delta) * online_cpus * 100.
func calcCPUPercent(raw container.StatsResponse) float64 {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	onlineCPUs := float64(raw.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}
	return (cpuDelta / systemDelta) * onlineCPUs * 100.0
}

// networkRx sums received bytes across all reported network interfaces.
func networkRx(raw container.StatsResponse) uint64 {
	var total uint64
	for _, n := range raw.Networks {
		total += n.RxBytes
	}
	return total
}

// networkTx sums transmitted bytes across all reported network interfaces.
func networkTx(raw container.StatsResponse) uint64 {
	var total uint64
	for _, n := range raw.Networks {
		total += n.TxBytes
	}
	return total
}

// pct returns value as a percentage of limit, or 0 if limit is not positive.
func pct(value, limit uint64) float64 {
	if limit == 0 {
		return 0
	}
	return (float64(value) / float64(limit)) * 100.0
}
