package metrics

import (
	"sync/atomic"
	"time"
)

// Labels are constant key/value pairs attached to every exported sample.
type Labels map[string]string

// Bucket bounds for the latency histograms.
var (
	// HandshakeLatencyBuckets are in milliseconds. scrypt dominates a
	// handshake, so the upper buckets matter.
	HandshakeLatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// LatencyBuckets are in microseconds and cover one seal or open.
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// counterID indexes Collector.counters.
type counterID int

const (
	cSessionsTotal counterID = iota
	cSessionsFailed
	cBytesSent
	cBytesReceived
	cMessagesSent
	cMessagesDelivered
	cMessagesRejected
	cAuthFailures
	cResendSent
	cErrorSent
	cControlReceived
	cHandshakeRateLimits
	cRetries
	cEncryptErrors
	cDecryptErrors
	cTransportErrors
	cProtocolErrors
	numCounters
)

// Collector aggregates counters and latency histograms from sessions and
// connection managers. All methods are safe for concurrent use.
type Collector struct {
	labels   Labels
	counters [numCounters]atomic.Uint64
	active   atomic.Int64
	since    atomic.Int64 // unix nanoseconds of creation or last Reset

	handshakeLatency *Histogram
	encryptLatency   *Histogram
	decryptLatency   *Histogram
}

// NewCollector creates a Collector. labels may be nil.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = Labels{}
	}
	c := &Collector{
		labels:           labels,
		handshakeLatency: NewHistogram(time.Millisecond, HandshakeLatencyBuckets...),
		encryptLatency:   NewHistogram(time.Microsecond, LatencyBuckets...),
		decryptLatency:   NewHistogram(time.Microsecond, LatencyBuckets...),
	}
	c.since.Store(time.Now().UnixNano())
	return c
}

func (c *Collector) inc(id counterID)           { c.counters[id].Add(1) }
func (c *Collector) add(id counterID, n uint64) { c.counters[id].Add(n) }
func (c *Collector) load(id counterID) uint64   { return c.counters[id].Load() }

// SessionStarted counts a new session and marks it active.
func (c *Collector) SessionStarted() {
	c.active.Add(1)
	c.inc(cSessionsTotal)
}

// SessionEnded marks a session inactive. Extra calls never drive the gauge
// below zero.
func (c *Collector) SessionEnded() {
	for {
		n := c.active.Load()
		if n <= 0 || c.active.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// SessionFailed counts a handshake or session that ended in error.
func (c *Collector) SessionFailed() { c.inc(cSessionsFailed) }

// RecordHandshakeLatency observes one handshake duration.
func (c *Collector) RecordHandshakeLatency(d time.Duration) {
	c.handshakeLatency.ObserveDuration(d)
}

// RecordBytesSent adds n frame bytes written.
func (c *Collector) RecordBytesSent(n uint64) { c.add(cBytesSent, n) }

// RecordBytesReceived adds n unit bytes read.
func (c *Collector) RecordBytesReceived(n uint64) { c.add(cBytesReceived, n) }

// RecordMessageSent counts a sealed and written message.
func (c *Collector) RecordMessageSent() { c.inc(cMessagesSent) }

// RecordMessageDelivered counts an opened message handed to the sink.
func (c *Collector) RecordMessageDelivered() { c.inc(cMessagesDelivered) }

// RecordMessageRejected counts an outbound message refused before sealing.
func (c *Collector) RecordMessageRejected() { c.inc(cMessagesRejected) }

// RecordAuthFailure counts a frame whose tag did not verify.
func (c *Collector) RecordAuthFailure() { c.inc(cAuthFailures) }

// RecordResendSent counts an outbound RESEND signal.
func (c *Collector) RecordResendSent() { c.inc(cResendSent) }

// RecordErrorSent counts an outbound ERROR signal.
func (c *Collector) RecordErrorSent() { c.inc(cErrorSent) }

// RecordControlReceived counts an inbound control signal.
func (c *Collector) RecordControlReceived() { c.inc(cControlReceived) }

// RecordHandshakeRateLimit counts a connection dropped by the handshake
// limiter.
func (c *Collector) RecordHandshakeRateLimit() { c.inc(cHandshakeRateLimits) }

// RecordRetry counts a backoff wait by a connection manager.
func (c *Collector) RecordRetry() { c.inc(cRetries) }

// RecordEncryptError counts a seal failure.
func (c *Collector) RecordEncryptError() { c.inc(cEncryptErrors) }

// RecordDecryptError counts an open failure.
func (c *Collector) RecordDecryptError() { c.inc(cDecryptErrors) }

// RecordTransportError counts a connection read or write failure.
func (c *Collector) RecordTransportError() { c.inc(cTransportErrors) }

// RecordProtocolError counts a malformed unit or unknown control signal.
func (c *Collector) RecordProtocolError() { c.inc(cProtocolErrors) }

// RecordEncryptLatency observes one seal.
func (c *Collector) RecordEncryptLatency(d time.Duration) {
	c.encryptLatency.ObserveDuration(d)
}

// RecordDecryptLatency observes one open.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.ObserveDuration(d)
}

// Snapshot is a point-in-time copy of a Collector. Counters are read one by
// one, so a snapshot taken under load is not a consistent cut.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration
	Labels    Labels

	SessionsActive uint64
	SessionsTotal  uint64
	SessionsFailed uint64

	BytesSent         uint64
	BytesReceived     uint64
	MessagesSent      uint64
	MessagesDelivered uint64
	MessagesRejected  uint64

	AuthFailures        uint64
	ResendSent          uint64
	ErrorSent           uint64
	ControlReceived     uint64
	HandshakeRateLimits uint64
	Retries             uint64

	EncryptErrors   uint64
	DecryptErrors   uint64
	TransportErrors uint64
	ProtocolErrors  uint64

	HandshakeLatency HistogramSummary
	EncryptLatency   HistogramSummary
	DecryptLatency   HistogramSummary
}

// Snapshot copies the current values.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Timestamp:           now,
		Uptime:              now.Sub(time.Unix(0, c.since.Load())),
		Labels:              c.labels,
		SessionsActive:      uint64(max(c.active.Load(), 0)),
		SessionsTotal:       c.load(cSessionsTotal),
		SessionsFailed:      c.load(cSessionsFailed),
		BytesSent:           c.load(cBytesSent),
		BytesReceived:       c.load(cBytesReceived),
		MessagesSent:        c.load(cMessagesSent),
		MessagesDelivered:   c.load(cMessagesDelivered),
		MessagesRejected:    c.load(cMessagesRejected),
		AuthFailures:        c.load(cAuthFailures),
		ResendSent:          c.load(cResendSent),
		ErrorSent:           c.load(cErrorSent),
		ControlReceived:     c.load(cControlReceived),
		HandshakeRateLimits: c.load(cHandshakeRateLimits),
		Retries:             c.load(cRetries),
		EncryptErrors:       c.load(cEncryptErrors),
		DecryptErrors:       c.load(cDecryptErrors),
		TransportErrors:     c.load(cTransportErrors),
		ProtocolErrors:      c.load(cProtocolErrors),
		HandshakeLatency:    c.handshakeLatency.Summary(),
		EncryptLatency:      c.encryptLatency.Summary(),
		DecryptLatency:      c.decryptLatency.Summary(),
	}
}

// Reset zeroes every counter and histogram and restarts the uptime clock.
func (c *Collector) Reset() {
	for i := range c.counters {
		c.counters[i].Store(0)
	}
	c.active.Store(0)
	c.handshakeLatency.Reset()
	c.encryptLatency.Reset()
	c.decryptLatency.Reset()
	c.since.Store(time.Now().UnixNano())
}

var global atomic.Pointer[Collector]

func init() {
	global.Store(NewCollector(Labels{"instance": "default"}))
}

// Global returns the process-wide collector.
func Global() *Collector {
	return global.Load()
}

// SetGlobal replaces the process-wide collector. nil is ignored.
func SetGlobal(c *Collector) {
	if c != nil {
		global.Store(c)
	}
}
