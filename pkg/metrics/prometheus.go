package metrics

import (
	"bufio"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// promContentType is the text exposition format version 0.0.4.
const promContentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders a Collector in the Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates an exporter that prefixes every metric name
// with namespace and an underscore.
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{collector: c, namespace: namespace}
}

// Handler serves the current snapshot.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", promContentType)
		_ = e.WriteMetrics(w)
	})
}

type promFamily struct {
	name  string
	help  string
	kind  string // gauge, counter or histogram
	value float64
	hist  *HistogramSummary
}

// families lists every exported metric in output order.
func families(snap Snapshot) []promFamily {
	counter := func(name, help string, v uint64) promFamily {
		return promFamily{name: name, help: help, kind: "counter", value: float64(v)}
	}
	histogram := func(name, help string, h HistogramSummary) promFamily {
		return promFamily{name: name, help: help, kind: "histogram", hist: &h}
	}
	return []promFamily{
		{name: "sessions_active", help: "Sessions currently running", kind: "gauge", value: float64(snap.SessionsActive)},
		counter("sessions_total", "Sessions established", snap.SessionsTotal),
		counter("sessions_failed_total", "Handshakes or sessions that ended in error", snap.SessionsFailed),
		counter("bytes_sent_total", "Frame bytes written", snap.BytesSent),
		counter("bytes_received_total", "Unit bytes read", snap.BytesReceived),
		counter("messages_sent_total", "Chat messages sealed and written", snap.MessagesSent),
		counter("messages_delivered_total", "Chat messages opened and delivered", snap.MessagesDelivered),
		counter("messages_rejected_total", "Outbound messages refused before sealing", snap.MessagesRejected),
		counter("auth_failures_total", "Frames that failed authentication", snap.AuthFailures),
		counter("resend_sent_total", "RESEND signals written", snap.ResendSent),
		counter("error_sent_total", "ERROR signals written", snap.ErrorSent),
		counter("control_received_total", "Control signals read", snap.ControlReceived),
		counter("handshake_rate_limited_total", "Connections dropped by the handshake limiter", snap.HandshakeRateLimits),
		counter("retries_total", "Backoff waits between connection attempts", snap.Retries),
		counter("encrypt_errors_total", "Seal failures", snap.EncryptErrors),
		counter("decrypt_errors_total", "Open failures", snap.DecryptErrors),
		counter("transport_errors_total", "Connection read and write failures", snap.TransportErrors),
		counter("protocol_errors_total", "Malformed units and unknown control signals", snap.ProtocolErrors),
		{name: "uptime_seconds", help: "Seconds since the collector was created", kind: "gauge", value: snap.Uptime.Seconds()},
		histogram("handshake_duration_milliseconds", "Handshake duration in milliseconds", snap.HandshakeLatency),
		histogram("encrypt_duration_microseconds", "Seal duration in microseconds", snap.EncryptLatency),
		histogram("decrypt_duration_microseconds", "Open duration in microseconds", snap.DecryptLatency),
	}
}

// WriteMetrics writes the current snapshot to w.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) error {
	snap := e.collector.Snapshot()
	labels := promLabels(snap.Labels)

	bw := bufio.NewWriter(w)
	for _, f := range families(snap) {
		name := e.namespace + "_" + f.name
		bw.WriteString("# HELP " + name + " " + f.help + "\n")
		bw.WriteString("# TYPE " + name + " " + f.kind + "\n")
		if f.hist == nil {
			writeSample(bw, name, labels, formatFloat(f.value))
			continue
		}
		for _, b := range f.hist.Buckets {
			writeSample(bw, name+"_bucket", appendLabel(labels, "le", formatFloat(b.UpperBound)), strconv.FormatUint(b.Count, 10))
		}
		writeSample(bw, name+"_sum", labels, formatFloat(f.hist.Sum))
		writeSample(bw, name+"_count", labels, strconv.FormatUint(f.hist.Count, 10))
	}
	return bw.Flush()
}

func writeSample(w *bufio.Writer, name, labels, value string) {
	w.WriteString(name)
	if labels != "" {
		w.WriteString("{" + labels + "}")
	}
	w.WriteString(" " + value + "\n")
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// promLabels renders labels sorted by key.
func promLabels(labels Labels) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k + `="` + escapeLabelValue(labels[k]) + `"`)
	}
	return b.String()
}

func appendLabel(labels, key, value string) string {
	pair := key + `="` + value + `"`
	if labels == "" {
		return pair
	}
	return labels + "," + pair
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabelValue(s string) string {
	return labelEscaper.Replace(s)
}
