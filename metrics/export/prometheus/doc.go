// Package prometheus renders mpauth engine metrics in Prometheus text
// exposition format. Counters are named mpauth_*_total, the validate latency
// histogram mpauth_validate_latency_seconds, and the lockout and token
// settings appear as gauges so alerts can compare failure rates against
// the configured budget.
//
// Nothing is registered globally; an [Exporter] is an http.Handler.
package prometheus
