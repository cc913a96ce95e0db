// Package sync adapts batch sizing to best-effort runtime signals.
package sync

// ConnectionQuality classifies the link to the remote backend.
type ConnectionQuality int

const (
	QualityUnknown ConnectionQuality = iota
	QualityLow
	QualityGood
	QualityHigh
)

// ConnectionInfo describes the current link. Metered marks connections the
// user pays for by volume; those are treated like low-quality links.
type ConnectionInfo struct {
	Quality ConnectionQuality
	Metered bool
}

// BatteryInfo describes the device power state. Known is false when the
// platform exposes no battery signal, in which case Level and Charging are
// meaningless.
type BatteryInfo struct {
	Level    float64 // 0.0 to 1.0
	Charging bool
	Known    bool
}

// CapabilityProvider reports runtime signals used for batch sizing. All
// signals are best-effort; implementations return unknown values when the
// host platform offers nothing better.
type CapabilityProvider interface {
	Connection() ConnectionInfo
	Battery() BatteryInfo
}

// DefaultCapabilities reports everything as unknown, which keeps batch
// sizing at its defaults and makes the engine deterministic in tests.
type DefaultCapabilities struct{}

// Connection reports an unknown, unmetered link.
func (DefaultCapabilities) Connection() ConnectionInfo {
	return ConnectionInfo{Quality: QualityUnknown}
}

// Battery reports no battery signal.
func (DefaultCapabilities) Battery() BatteryInfo {
	return BatteryInfo{}
}

// Batch sizing bounds.
const (
	defaultBatchSize     = 10
	lowQualityBatchSize  = 3
	highQualityBatchSize = 20
	lowBatteryBatchSize  = 2
	lowBatteryThreshold  = 0.2
)

// batchPlan is the sizing decision for one sync pass.
type batchPlan struct {
	size       int
	lowQuality bool
}

// planBatches derives the batch size from capability signals. Unknown
// signals leave the defaults in place; the battery clamp is applied last
// and only ever shrinks the batch.
func planBatches(caps CapabilityProvider) batchPlan {
	plan := batchPlan{size: defaultBatchSize}
	if caps == nil {
		return plan
	}

	conn := caps.Connection()
	switch {
	case conn.Metered || conn.Quality == QualityLow:
		plan.size = lowQualityBatchSize
		plan.lowQuality = true
	case conn.Quality == QualityHigh:
		plan.size = highQualityBatchSize
	}

	battery := caps.Battery()
	if battery.Known && !battery.Charging && battery.Level < lowBatteryThreshold {
		if plan.size > lowBatteryBatchSize {
			plan.size = lowBatteryBatchSize
		}
	}

	return plan
}
