package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// summaryQuantiles are the quantiles reported by Summary.
var summaryQuantiles = []float64{0.5, 0.9, 0.99}

// Histogram records latencies into fixed buckets. Values are stored in the
// histogram's unit, so a millisecond histogram with bound 250 counts a
// 200ms handshake in the 250 bucket. Safe for concurrent use.
type Histogram struct {
	unit   time.Duration
	bounds []float64

	mu     sync.Mutex
	counts []uint64 // len(bounds)+1, the last slot is +Inf
	n      uint64
	sum    float64
	lo, hi float64
}

// NewHistogram creates a histogram measuring in unit with the given upper
// bounds. Bounds are sorted and deduplicated.
func NewHistogram(unit time.Duration, bounds ...float64) *Histogram {
	if unit <= 0 {
		unit = time.Millisecond
	}
	b := slices.Clone(bounds)
	slices.Sort(b)
	b = slices.Compact(b)

	h := &Histogram{
		unit:   unit,
		bounds: b,
		counts: make([]uint64, len(b)+1),
	}
	h.clear()
	return h
}

func (h *Histogram) clear() {
	clear(h.counts)
	h.n = 0
	h.sum = 0
	h.lo = math.Inf(1)
	h.hi = math.Inf(-1)
}

// ObserveDuration records d converted to the histogram unit.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(float64(d) / float64(h.unit))
}

// Observe records v, already expressed in the histogram unit.
func (h *Histogram) Observe(v float64) {
	i, _ := slices.BinarySearch(h.bounds, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[i]++
	h.n++
	h.sum += v
	h.lo = math.Min(h.lo, v)
	h.hi = math.Max(h.hi, v)
}

// HistogramSummary is a point-in-time copy of a histogram.
type HistogramSummary struct {
	Count       uint64              `json:"count"`
	Sum         float64             `json:"sum"`
	Min         float64             `json:"min"`
	Max         float64             `json:"max"`
	Mean        float64             `json:"mean"`
	Buckets     []BucketCount       `json:"buckets"`
	Percentiles map[float64]float64 `json:"percentiles,omitempty"`
}

// BucketCount is one cumulative bucket.
type BucketCount struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// Summary returns cumulative buckets and estimated quantiles.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.n == 0 {
		return HistogramSummary{
			Buckets:     []BucketCount{},
			Percentiles: map[float64]float64{},
		}
	}

	buckets := make([]BucketCount, 0, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		bound := math.Inf(1)
		if i < len(h.bounds) {
			bound = h.bounds[i]
		}
		buckets = append(buckets, BucketCount{UpperBound: bound, Count: running})
	}

	percentiles := make(map[float64]float64, len(summaryQuantiles))
	for _, q := range summaryQuantiles {
		percentiles[q] = h.quantileLocked(q)
	}

	return HistogramSummary{
		Count:       h.n,
		Sum:         h.sum,
		Min:         h.lo,
		Max:         h.hi,
		Mean:        h.sum / float64(h.n),
		Buckets:     buckets,
		Percentiles: percentiles,
	}
}

// Quantile estimates the q-quantile (0..1) by interpolating inside the
// bucket that holds it. The estimate is clamped to the observed min and max.
// It returns 0 for an empty histogram.
func (h *Histogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantileLocked(q)
}

func (h *Histogram) quantileLocked(q float64) float64 {
	if h.n == 0 {
		return 0
	}
	q = math.Max(0, math.Min(1, q))
	rank := q * float64(h.n)

	var below uint64
	for i, c := range h.counts {
		if c == 0 || float64(below+c) < rank {
			below += c
			continue
		}
		lower := h.lo
		if i > 0 {
			lower = math.Max(lower, h.bounds[i-1])
		}
		upper := h.hi
		if i < len(h.bounds) {
			upper = math.Min(upper, h.bounds[i])
		}
		frac := (rank - float64(below)) / float64(c)
		return lower + frac*(upper-lower)
	}
	return h.hi
}

// Reset drops all observations.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clear()
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

// Mean returns the average observation, or 0 when empty.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n == 0 {
		return 0
	}
	return h.sum / float64(h.n)
}
