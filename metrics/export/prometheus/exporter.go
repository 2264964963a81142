package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what a scrape reads. *mpauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() mpauth.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
	SecurityReport() mpauth.SecurityReport
}

// Exporter serves engine counters, the validate latency histogram, audit
// drops per event type and the lockout/token posture as gauges.
type Exporter struct {
	source Source
}

// New returns an Exporter reading source on every scrape.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

func (e *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentType)
	_, _ = io.WriteString(w, e.Render())
}

// Render returns the exposition text. Counters are omitted when the engine
// runs with metrics disabled; the posture gauges are always present.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	var w expositionWriter
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		for _, def := range internaldefs.CounterDefs {
			w.family(def.Name, "counter", def.Help)
			w.sample(def.Name, nil, snapshot.Counters[def.ID])
		}
		for _, def := range internaldefs.HistogramDefs {
			w.histogram(def.Name, def.Help, snapshot.Histograms[def.ID])
		}
	}

	dropped := e.source.AuditDroppedByType()
	w.family(internaldefs.AuditDroppedName, "counter", "Audit events dropped because the dispatcher buffer was full.")
	types := make([]string, 0, len(dropped))
	for t := range dropped {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		w.sample(internaldefs.AuditDroppedName, []string{"event_type", t}, dropped[t])
	}

	report := e.source.SecurityReport()
	w.gauge("mpauth_lockout_max_attempts", "Failed sign-ins that engage a lock.", float64(report.LockoutMaxAttempts))
	w.gauge("mpauth_lockout_duration_seconds", "How long an engaged lock holds.", report.LockoutDuration.Seconds())
	w.gauge("mpauth_access_token_ttl_seconds", "Lifetime of issued bearer tokens.", report.AccessTTL.Seconds())
	w.family("mpauth_security_info", "gauge", "Effective security settings, value is always 1.")
	w.sample("mpauth_security_info", []string{
		"password_scheme", report.PasswordScheme,
		"signing_algorithm", report.SigningAlgorithm,
		"production", strconv.FormatBool(report.ProductionMode),
		"payload_signature", strconv.FormatBool(report.PayloadSignatureVerified),
		"captcha", strconv.FormatBool(report.CaptchaRequired),
	}, 1)

	return w.String()
}

type expositionWriter struct {
	strings.Builder
}

func (w *expositionWriter) family(name, kind, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

// sample writes one line. labels alternate name and value.
func (w *expositionWriter) sample(name string, labels []string, value uint64) {
	w.WriteString(name)
	w.writeLabels(labels)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(value, 10))
	w.WriteByte('\n')
}

func (w *expositionWriter) gauge(name, help string, value float64) {
	w.family(name, "gauge", help)
	fmt.Fprintf(w, "%s %s\n", name, strconv.FormatFloat(value, 'g', -1, 64))
}

func (w *expositionWriter) histogram(name, help string, raw []uint64) {
	w.family(name, "histogram", help)
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", []string{"le", le}, cumulative[i])
	}
	w.sample(name+"_count", nil, cumulative[len(cumulative)-1])
	// The engine keeps bucket counts only.
	w.sample(name+"_sum", nil, 0)
}

func (w *expositionWriter) writeLabels(labels []string) {
	if len(labels) == 0 {
		return
	}
	w.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			w.WriteByte(',')
		}
		fmt.Fprintf(w, "%s=%q", labels[i], escapeLabel(labels[i+1]))
	}
	w.WriteByte('}')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}

// escapeLabel leaves quoting to %q; only newlines need rewriting first.
func escapeLabel(v string) string {
	return strings.ReplaceAll(v, "\n", " ")
}
