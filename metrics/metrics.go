// Package metrics defines the instrumentation surface of the gateway: event
// counters keyed by the names below and per-operation latency.
package metrics

import "time"

// Event names recorded through IncCounter.
const (
	EventPaymentCreated    = "payment_created"
	EventPaymentConfirmed  = "payment_confirmed"
	EventPaymentExpired    = "payment_expired"
	EventForwardingFailed  = "forwarding_failed"
	EventPollError         = "poll_error"
	EventBalanceRegression = "balance_regression"
	EventAddressGenFailed  = "address_generation_failed"
)

// Operation names recorded through ObserveLatency.
const (
	OpGenerateAddress = "generate_address"
	OpPollCycle       = "poll_cycle"
)

// Recorder counts gateway events and observes operation latency. Labels
// carry at least "coin"; implementations may drop keys they do not export.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
