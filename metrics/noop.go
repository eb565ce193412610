package metrics

import "time"

// NoopRecorder drops all measurements. A gateway constructed without
// WithMetrics records through it.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
