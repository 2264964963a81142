// Package otel publishes mpauth engine metrics through an OpenTelemetry Meter.
//
// Related counters share one instrument and differ by an "outcome" attribute,
// so mpauth.signin carries success, failure, locked, rate_limited and
// captcha_mismatch. Latency buckets are a gauge with an "le" attribute. The
// lockout and token posture from Engine.SecurityReport is observed on every
// collection, including when engine metrics are disabled.
package otel
