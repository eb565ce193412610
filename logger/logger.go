// Package logger defines the structured logging surface shared by the
// gateway, the payment processor and the rate cache. Components log through
// the Logger interface with a flat field map; paymentId, address and coin
// are the conventional keys, so a sink can correlate every line touching a
// single payment.
package logger

// Logger is satisfied by ZapLogger for production use and NoopLogger for
// embedders that bring their own logging.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything. A gateway constructed without WithLogger
// logs through it.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
