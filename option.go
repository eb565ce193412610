package gateway

import (
	"time"

	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/metrics"
)

type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.metrics = r
	}
}

// WithClock overrides the time source. The clock is threaded through to the
// processor and the rate cache, so record timestamps, expiry checks and rate
// aging all follow it.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}
