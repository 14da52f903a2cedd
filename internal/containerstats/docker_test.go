package containerstats

import (
	"context"
	"testing"

	"github.com/moby/moby/api/types/container"
)

func TestNoopSensorReturnsEmptyMap(t *testing.T) {
	stats, err := NoopSensor{}.GetContainerStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected empty map, got %v", stats)
	}
}

func TestCalcCPUPercentZeroWhenNoDelta(t *testing.T) {
	raw := container.StatsResponse{}
	if got := calcCPUPercent(raw); got != 0 {
		t.Fatalf("expected 0 with no samples, got %f", got)
	}
}

func TestCalcCPUPercentFormula(t *testing.T) {
	var raw container.StatsResponse
	raw.CPUStats.CPUUsage.TotalUsage = 2000
	raw.PreCPUStats.CPUUsage.TotalUsage = 1000
	raw.CPUStats.SystemUsage = 20000
	raw.PreCPUStats.SystemUsage = 10000
	raw.CPUStats.OnlineCPUs = 4

	// cpu_delta=1000, system_delta=10000 -> (1000/10000)*4*100 = 40
	got := calcCPUPercent(raw)
	if got != 40 {
		t.Fatalf("expected 40, got %f", got)
	}
}

func TestPctZeroLimit(t *testing.T) {
	if got := pct(100, 0); got != 0 {
		t.Fatalf("expected 0 for zero limit, got %f", got)
	}
}

func TestPctComputesPercentage(t *testing.T) {
	if got := pct(50, 200); got != 25 {
		t.Fatalf("expected 25, got %f", got)
	}
}

func TestEndpointURIForUsesPublishedPort(t *testing.T) {
	c := container.Summary{
		Image: "myapp:latest",
		Ports: []container.Port{{PublicPort: 7001}},
	}
	if got := endpointURIFor(c); got != "http://localhost:7001" {
		t.Fatalf("expected http://localhost:7001, got %s", got)
	}
}

func TestEndpointURIForFallsBackToImageSuffix(t *testing.T) {
	c := container.Summary{Image: "backend-7002"}
	if got := endpointURIFor(c); got != "http://localhost:7002" {
		t.Fatalf("expected http://localhost:7002, got %s", got)
	}
}

func TestEndpointURIForEmptyWhenUnresolvable(t *testing.T) {
	c := container.Summary{Image: "backend"}
	if got := endpointURIFor(c); got != "" {
		t.Fatalf("expected empty uri, got %s", got)
	}
}
