package lifecycle

import "math"

// Polling backoff: a flat base interval keeps fresh orders responsive; past
// the steady window the wait escalates geometrically up to a hard cap so
// long-stuck orders stop burning polling budget.
const (
	baseWaitSeconds  = 12
	maxWaitSeconds   = 18000
	steadyRetries    = 300
	escalationFactor = 1.05
)

// NextWaitSeconds returns how long the external scheduler should wait before
// re-invoking the step for an order polled retryCount times already.
func NextWaitSeconds(retryCount int) int {
	if retryCount <= steadyRetries {
		return baseWaitSeconds
	}
	w := float64(baseWaitSeconds) * math.Pow(escalationFactor, float64(retryCount-steadyRetries))
	if w >= maxWaitSeconds {
		return maxWaitSeconds
	}
	return int(math.Ceil(w))
}
