package resources

import (
	"math"
)

// cpuCap bounds observed cpu usage that may trigger escalation.
const cpuCap = 20

// Escalate computes raised requirements after a failure, given the task's
// current requirements and the resource usage the pilot observed.
//
// cpu is raised by exactly one core, and only when the observed usage
// exceeds the current value by more than 10% and is at most 20 cores.
// The observed ratio is only a guard; the step is always +1.
//
// Other numeric resources are raised to 1.5x the observed usage when that
// is above the current value. Integer resources are rounded up.
//
// The result only holds keys that increased. Callers apply it with max
// semantics so a requirement never decreases.
func Escalate(current Requirements, observed map[string]interface{}) map[string]float64 {
	out := map[string]float64{}
	for k, v := range observed {
		if !IsNumeric(k) {
			continue
		}
		used, ok := toFloat(v)
		if !ok {
			continue
		}
		cur := current.Float(k)

		var next float64
		if k == CPU {
			if used <= cur*1.1 || used > cpuCap {
				continue
			}
			next = cur + 1
		} else {
			next = used * 1.5
		}
		if IsInteger(k) {
			next = math.Ceil(next)
		}
		if next > cur {
			out[k] = next
		}
	}
	return out
}
