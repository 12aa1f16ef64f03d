// Package timer implements the runtime's timer heap: an ordered set of
// pending callbacks keyed by absolute expiry time, with recurring
// timers, condition-gated timers, and detection of the host clock
// jumping backwards.
package timer
