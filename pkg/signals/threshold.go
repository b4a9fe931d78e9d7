package signals

// ThresholdState is the zone a tracked metric currently sits in.
type ThresholdState string

const (
	ThresholdLow    ThresholdState = "low"
	ThresholdNormal ThresholdState = "normal"
	ThresholdHigh   ThresholdState = "high"
)

type band struct {
	low, high float64
}

// ThresholdTracker classifies samples of named metrics into low/normal/high
// zones and reports edge-triggered transitions. v <= low maps to low,
// v >= high maps to high, everything between is normal. No hysteresis.
type ThresholdTracker struct {
	bands  map[string]band
	states map[string]ThresholdState
}

func NewThresholdTracker() *ThresholdTracker {
	return &ThresholdTracker{
		bands:  make(map[string]band),
		states: make(map[string]ThresholdState),
	}
}

// Track registers a metric with its (low, high) band. State starts normal.
func (t *ThresholdTracker) Track(metric string, low, high float64) {
	t.bands[metric] = band{low: low, high: high}
	t.states[metric] = ThresholdNormal
}

// Check classifies a sample. crossed is true when the zone changed from
// the previous sample, including transitions back to normal.
func (t *ThresholdTracker) Check(metric string, value float64) (state ThresholdState, crossed bool) {
	b, ok := t.bands[metric]
	if !ok {
		return ThresholdNormal, false
	}

	state = ThresholdNormal
	switch {
	case value <= b.low:
		state = ThresholdLow
	case value >= b.high:
		state = ThresholdHigh
	}

	if state != t.states[metric] {
		t.states[metric] = state
		return state, true
	}
	return state, false
}

// State returns the current zone of a metric.
func (t *ThresholdTracker) State(metric string) ThresholdState {
	if s, ok := t.states[metric]; ok {
		return s
	}
	return ThresholdNormal
}
