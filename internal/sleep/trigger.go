// Package sleep consolidates recent conversation activity into durable
// memories when the context window fills up.
package sleep

import "time"

// Usage is how much of a scope's context window is in use.
type Usage struct {
	Used   int
	Window int
}

// Ratio returns Used/Window, or 0 for an empty window.
func (u Usage) Ratio() float64 {
	if u.Window <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Window)
}

// ShouldSleep reports whether a consolidation run is due: usage is at or
// above threshold and cooldown has passed since lastRun. A zero lastRun
// means the scope never ran.
func ShouldSleep(u Usage, threshold float64, lastRun, now time.Time, cooldown time.Duration) bool {
	if u.Window <= 0 || u.Ratio() < threshold {
		return false
	}
	return lastRun.IsZero() || now.Sub(lastRun) >= cooldown
}
