package leak

// alertGate rate-limits positive classifications to at most one alert
// per cooldown window. Without it a sustained leak would re-alert on
// every poll tick.
type alertGate struct {
	lastAlertTime float64
}

// admit reports whether an alert may fire at now (sample-time seconds)
// and, if so, arms the cooldown.
func (g *alertGate) admit(now float64, cooldownSec int) bool {
	if g.lastAlertTime != 0 && now-g.lastAlertTime < float64(cooldownSec) {
		return false
	}
	g.lastAlertTime = now
	return true
}

// reset clears the cooldown so the next qualifying classification can
// alert immediately.
func (g *alertGate) reset() {
	g.lastAlertTime = 0
}
