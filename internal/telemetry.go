package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the metadata cache. Callers may register a
// Prometheus-backed emitter (or a test stub) via RegisterTelemetryEmitter. By default the
// emitter is a no-op.

// TelemetryEmitter receives a named measurement with labels.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	MetricPopulationLatency    = "eav_population_latency_ms"
	MetricSecondaryCacheResult = "eav_secondary_cache_result"
)

// Secondary cache outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeCorrupt  = "corrupt"
	OutcomeError    = "error"
	OutcomeDisabled = "disabled"
	OutcomeSaved    = "saved"
)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. A nil fn restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitPopulation records how long a population pass took (milliseconds).
// table: "entity_types"|"attributes"; origin: "source"|"secondary_cache".
func EmitPopulation(ctx context.Context, table, origin string, ms int64) {
	emit(ctx, MetricPopulationLatency, map[string]string{"table": table, "origin": origin}, ms)
}

// EmitSecondaryCacheResult records the outcome of a secondary cache access for a key.
func EmitSecondaryCacheResult(ctx context.Context, key, outcome string) {
	emit(ctx, MetricSecondaryCacheResult, map[string]string{"key": key, "outcome": outcome}, 1)
}
