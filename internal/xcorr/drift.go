package xcorr

// float64Epsilon approximates the relative rounding error of one float64
// arithmetic operation, used to bound how many incremental running-sum
// updates a Processor may perform before it must resynchronize its Σx/Σx²
// accumulators from a fresh snapshot (spec.md §4.2: "R chosen so relative
// error ≤ 1e-9").
const float64Epsilon = 2.220446049250313e-16

const (
	minResyncPeriod = 64
	maxResyncPeriod = 1 << 20
)

// DeriveResyncPeriod returns the number of samples a Processor may advance
// between snapshot recomputations while keeping the accumulated relative
// error of its running sums at or below maxRelativeError. Each incremental
// add/subtract contributes on the order of one float64 ULP of relative
// error, so bounding the update count between resyncs bounds the worst
// case drift; maxRelativeError <= 0 falls back to the spec's 1e-9 target.
// The result is clamped to [minResyncPeriod, maxResyncPeriod], so a bound
// tighter than about 64 ULPs still yields a period of 64 samples.
func DeriveResyncPeriod(maxRelativeError float64) int {
	if maxRelativeError <= 0 {
		maxRelativeError = 1e-9
	}
	r := int(maxRelativeError / float64Epsilon)
	if r < minResyncPeriod {
		r = minResyncPeriod
	}
	if r > maxResyncPeriod {
		r = maxResyncPeriod
	}
	return r
}
