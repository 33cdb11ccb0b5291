// Package monitor samples the live state of tracked sandboxes on an
// interval and publishes the readings to the event bus.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/events"
	"github.com/mkarolys/handbox/internal/sandbox"
)

// DefaultInterval is the sampling period when none is given.
const DefaultInterval = 30 * time.Second

// Monitor polls the runtime for container status and resource usage.
type Monitor struct {
	rt       sandbox.ContainerRuntime
	bus      *events.Bus
	log      *zap.Logger
	interval time.Duration
}

// New creates a monitor. bus may be nil, in which case readings are only
// logged. interval <= 0 uses DefaultInterval.
func New(rt sandbox.ContainerRuntime, bus *events.Bus, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		rt:       rt,
		bus:      bus,
		log:      logger,
		interval: interval,
	}
}

// Run samples until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample inspects every tracked container once.
func (m *Monitor) sample(ctx context.Context) {
	for _, info := range m.rt.Containers() {
		status, err := m.rt.Status(ctx, info.ID)
		if err != nil {
			// The container was removed between listing and inspection.
			continue
		}

		m.log.Debug("sandbox status",
			zap.String("id", status.ID),
			zap.String("status", status.Status),
			zap.Uint64("memory", status.MemoryUsage))

		if m.bus != nil {
			m.bus.Publish(events.New(events.KindContainerStatus, status.ID, map[string]any{
				"name":        status.Name,
				"status":      status.Status,
				"cpuUsage":    status.CPUUsage,
				"memoryUsage": status.MemoryUsage,
			}))
		}
	}
}
