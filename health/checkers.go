package health

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/glimte/nestq/messaging"
)

// DepthWarning is the queue depth from which the engine checker reports
// degraded instead of healthy.
const DepthWarning = 10000

// EngineChecker probes the broker engine by inspecting the nest's queues.
// An unreachable queue makes it unhealthy; a queue backing up past the
// warning depth makes it degraded.
type EngineChecker struct {
	engine       messaging.Engine
	queues       []string
	depthWarning int
	logger       *slog.Logger
}

// NewEngineChecker creates a checker over engine for the given queues,
// typically nest.Engine() and nest.Queues().
func NewEngineChecker(engine messaging.Engine, queues []string, logger *slog.Logger) *EngineChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineChecker{
		engine:       engine,
		queues:       queues,
		depthWarning: DepthWarning,
		logger:       logger,
	}
}

func (c *EngineChecker) Name() string {
	return "engine"
}

func (c *EngineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	total := 0
	backlogged := ""
	for _, queue := range c.queues {
		info, err := c.engine.InspectQueue(ctx, queue)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = fmt.Sprintf("queue %s not accessible", queue)
			result.Error = err.Error()
			result.Duration = time.Since(start)
			return result
		}
		result.Details["queue_"+queue] = info.Messages
		total += info.Messages
		if info.Messages > c.depthWarning && backlogged == "" {
			backlogged = queue
		}
	}

	if backlogged != "" {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("queue %s is backing up", backlogged)
	} else {
		result.Status = StatusHealthy
		result.Message = "all queues accessible"
	}
	result.Duration = time.Since(start)
	result.Details["messages_total"] = total
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	return result
}

// RuntimeChecker watches the process itself: goroutine count and heap
// use. It guards against listener leaks, not against the broker.
type RuntimeChecker struct {
	warnGoroutines     int
	criticalGoroutines int
}

// NewRuntimeChecker creates a runtime checker. Non-positive thresholds
// fall back to 500 warning / 1000 critical goroutines.
func NewRuntimeChecker(warnGoroutines, criticalGoroutines int) *RuntimeChecker {
	if warnGoroutines <= 0 {
		warnGoroutines = 500
	}
	if criticalGoroutines <= 0 {
		criticalGoroutines = 1000
	}
	return &RuntimeChecker{
		warnGoroutines:     warnGoroutines,
		criticalGoroutines: criticalGoroutines,
	}
}

func (c *RuntimeChecker) Name() string {
	return "runtime"
}

func (c *RuntimeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result.Details["goroutines"] = goroutines
	result.Details["heap_alloc_mb"] = float64(m.HeapAlloc) / 1024 / 1024
	result.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC

	switch {
	case goroutines > c.criticalGoroutines:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.warnGoroutines:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "runtime is normal"
	}

	result.Duration = time.Since(start)
	return result
}
