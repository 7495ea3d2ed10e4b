package observability

import (
	"sync"
	"time"
)

// ConfigErrorWatchdog tracks each project's ConfigError rate over a
// rolling window and fires a PagerDuty alert (resolving it once the
// rate drops back below threshold) rather than escalating on
// individual errors.
type ConfigErrorWatchdog struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	pd        *PagerDutyClient
	splunk    *SplunkForwarder
	events    map[string][]time.Time // project_id -> error timestamps in window
	calls     map[string][]time.Time // project_id -> all evaluate-call timestamps in window
	firing    map[string]bool
}

// NewConfigErrorWatchdog creates a watchdog alerting when a project's
// ConfigError rate exceeds threshold (0-1) over window. splunk may be
// nil, in which case the spike is only sent to PagerDuty.
func NewConfigErrorWatchdog(pd *PagerDutyClient, splunk *SplunkForwarder, window time.Duration, threshold float64) *ConfigErrorWatchdog {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 0.2
	}
	return &ConfigErrorWatchdog{
		window:    window,
		threshold: threshold,
		pd:        pd,
		splunk:    splunk,
		events:    make(map[string][]time.Time),
		calls:     make(map[string][]time.Time),
		firing:    make(map[string]bool),
	}
}

// RecordCall logs one Evaluate call for projectID, with isError set
// when the call failed validation, and alerts/resolves as needed.
func (w *ConfigErrorWatchdog) RecordCall(projectID string, isError bool) {
	now := time.Now()
	w.mu.Lock()
	w.calls[projectID] = prune(append(w.calls[projectID], now), now, w.window)
	if isError {
		w.events[projectID] = prune(append(w.events[projectID], now), now, w.window)
	} else {
		w.events[projectID] = prune(w.events[projectID], now, w.window)
	}
	total := len(w.calls[projectID])
	errors := len(w.events[projectID])
	w.mu.Unlock()

	if total < 5 || w.pd == nil {
		return
	}
	rate := float64(errors) / float64(total)

	w.mu.Lock()
	wasFiring := w.firing[projectID]
	w.mu.Unlock()

	if rate >= w.threshold && !wasFiring {
		if err := w.pd.AlertConfigErrorSpike(projectID, rate, w.window.String()); err == nil {
			w.mu.Lock()
			w.firing[projectID] = true
			w.mu.Unlock()
			if w.splunk != nil {
				w.splunk.LogConfigErrorSpike(projectID, rate, w.window.String())
			}
		}
	} else if rate < w.threshold && wasFiring {
		if err := w.pd.AlertConfigErrorRecovered(projectID); err == nil {
			w.mu.Lock()
			w.firing[projectID] = false
			w.mu.Unlock()
		}
	}
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
