package otel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what a collection reads. *mpauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() mpauth.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
	SecurityReport() mpauth.SecurityReport
}

// counterGroup folds related engine counters into one instrument keyed by an
// outcome attribute.
type counterGroup struct {
	name     string
	help     string
	outcomes map[mpauth.MetricID]string
}

var counterGroups = []counterGroup{
	{name: "mpauth.signup", help: "Username and password sign-ups by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricSignUpSuccess:   "success",
		mpauth.MetricSignUpDuplicate: "duplicate",
	}},
	{name: "mpauth.signin", help: "Password sign-ins by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricSignInSuccess:     "success",
		mpauth.MetricSignInFailure:     "failure",
		mpauth.MetricSignInLocked:      "locked",
		mpauth.MetricSignInRateLimited: "rate_limited",
		mpauth.MetricCaptchaMismatch:   "captcha_mismatch",
	}},
	{name: "mpauth.lock.engaged", help: "Account locks engaged by repeated failures.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricLockEngaged: "",
	}},
	{name: "mpauth.password.rehashed", help: "Legacy password digests upgraded on sign-in.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricPasswordRehashed: "",
	}},
	{name: "mpauth.store.conflict", help: "Operations that exhausted compare-and-swap retries.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricStoreConflict: "",
	}},
	{name: "mpauth.signout", help: "Tokens revoked by sign-out.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricSignOut: "",
	}},
	{name: "mpauth.validate", help: "Bearer token checks by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricValidateSuccess:      "success",
		mpauth.MetricValidateFailure:      "failure",
		mpauth.MetricRevokedTokenRejected: "revoked",
	}},
	{name: "mpauth.password_reset", help: "Password resets by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricPasswordResetSuccess: "success",
		mpauth.MetricPasswordResetFailure: "failure",
	}},
	{name: "mpauth.external", help: "Identity-provider sign-ups and sign-ins by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricExternalSignUp:  "signup",
		mpauth.MetricExternalSignIn:  "signin",
		mpauth.MetricExternalFailure: "failure",
	}},
	{name: "mpauth.profile", help: "Profile payload decrypts by outcome.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricProfileDecrypted:  "decrypted",
		mpauth.MetricProfileRejected:   "rejected",
		mpauth.MetricProfileUnverified: "unverified",
	}},
	{name: "mpauth.backend.failure", help: "Store, revocation, throttle or provider failures.", outcomes: map[mpauth.MetricID]string{
		mpauth.MetricBackendFailure: "",
	}},
}

type observedGroup struct {
	instrument metric.Int64ObservableCounter
	ids        []mpauth.MetricID
	attrs      []metric.ObserveOption
}

type observedHistogram struct {
	id      mpauth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine counters, the validate latency buckets, audit
// drops per event type and the security posture on a Meter.
type Exporter struct {
	source       Source
	registration metric.Registration

	groups       []observedGroup
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter

	maxAttempts  metric.Int64ObservableGauge
	lockDuration metric.Float64ObservableGauge
	accessTTL    metric.Float64ObservableGauge
	info         metric.Int64ObservableGauge
}

// New registers instruments for source on meter. Call Close to unregister
// them; the caller owns the MeterProvider.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, g := range counterGroups {
		ins, err := meter.Int64ObservableCounter(g.name, metric.WithDescription(g.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", g.name, err)
		}
		og := observedGroup{instrument: ins}
		for _, id := range sortedIDs(g.outcomes) {
			og.ids = append(og.ids, id)
			if outcome := g.outcomes[id]; outcome != "" {
				og.attrs = append(og.attrs, metric.WithAttributes(attribute.String("outcome", outcome)))
			} else {
				og.attrs = append(og.attrs, nil)
			}
		}
		e.groups = append(e.groups, og)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		name := otelName(def.Name)
		buckets, err := meter.Int64ObservableGauge(name+".bucket", metric.WithDescription(def.Help+" Cumulative count per upper bound."), metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", name, err)
		}
		count, err := meter.Int64ObservableGauge(name+".count", metric.WithDescription(def.Help+" Total samples."), metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", name, err)
		}
		e.histograms = append(e.histograms, observedHistogram{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	var err error
	if e.auditDropped, err = meter.Int64ObservableCounter("mpauth.audit.dropped",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full.")); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	if e.maxAttempts, err = meter.Int64ObservableGauge("mpauth.lockout.max_attempts",
		metric.WithDescription("Failed sign-ins that engage a lock.")); err != nil {
		return nil, fmt.Errorf("create lockout gauge: %w", err)
	}
	if e.lockDuration, err = meter.Float64ObservableGauge("mpauth.lockout.duration",
		metric.WithDescription("How long an engaged lock holds."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create lockout duration gauge: %w", err)
	}
	if e.accessTTL, err = meter.Float64ObservableGauge("mpauth.access_token.ttl",
		metric.WithDescription("Lifetime of issued bearer tokens."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create token ttl gauge: %w", err)
	}
	if e.info, err = meter.Int64ObservableGauge("mpauth.security.info",
		metric.WithDescription("Effective security settings, value is always 1.")); err != nil {
		return nil, fmt.Errorf("create security info gauge: %w", err)
	}
	observables = append(observables, e.auditDropped, e.maxAttempts, e.lockDuration, e.accessTTL, e.info)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	// Metrics disabled: keep the posture, skip the all-zero counters.
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		for _, g := range e.groups {
			for i, id := range g.ids {
				if g.attrs[i] == nil {
					o.ObserveInt64(g.instrument, int64(snapshot.Counters[id]))
					continue
				}
				o.ObserveInt64(g.instrument, int64(snapshot.Counters[id]), g.attrs[i])
			}
		}
		for _, h := range e.histograms {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
			for i, le := range internaldefs.HistogramBounds {
				o.ObserveInt64(h.buckets, int64(cumulative[i]), metric.WithAttributes(attribute.String("le", le)))
			}
			o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
	}

	for eventType, n := range e.source.AuditDroppedByType() {
		o.ObserveInt64(e.auditDropped, int64(n), metric.WithAttributes(attribute.String("event_type", eventType)))
	}

	report := e.source.SecurityReport()
	o.ObserveInt64(e.maxAttempts, int64(report.LockoutMaxAttempts))
	o.ObserveFloat64(e.lockDuration, report.LockoutDuration.Seconds())
	o.ObserveFloat64(e.accessTTL, report.AccessTTL.Seconds())
	o.ObserveInt64(e.info, 1, metric.WithAttributes(
		attribute.String("password_scheme", report.PasswordScheme),
		attribute.String("signing_algorithm", report.SigningAlgorithm),
		attribute.String("production", strconv.FormatBool(report.ProductionMode)),
		attribute.String("payload_signature", strconv.FormatBool(report.PayloadSignatureVerified)),
		attribute.String("captcha", strconv.FormatBool(report.CaptchaRequired)),
	))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func sortedIDs(m map[mpauth.MetricID]string) []mpauth.MetricID {
	ids := make([]mpauth.MetricID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// otelName maps "mpauth_validate_latency_seconds" to "mpauth.validate.latency".
func otelName(promName string) string {
	return strings.ReplaceAll(strings.TrimSuffix(promName, "_seconds"), "_", ".")
}
