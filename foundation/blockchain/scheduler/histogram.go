package scheduler

import (
	"math"
	"sync/atomic"
	"time"
)

// bucketCount covers latencies from one microsecond up to about one minute
// in powers of two. Anything longer lands in the last bucket.
const bucketCount = 27

// Histogram records task latencies. Recording is lock free so workers never
// contend on their own statistics.
type Histogram struct {
	count   atomic.Uint64
	sum     atomic.Int64
	min     atomic.Int64
	max     atomic.Int64
	buckets [bucketCount]atomic.Uint64
}

// LatencySnapshot is a point in time copy of a histogram.
type LatencySnapshot struct {
	Count   uint64              `json:"count"`
	Min     time.Duration       `json:"min"`
	Mean    time.Duration       `json:"mean"`
	Max     time.Duration       `json:"max"`
	Buckets [bucketCount]uint64 `json:"buckets"`
}

func newHistogram() *Histogram {
	var h Histogram
	h.min.Store(math.MaxInt64)
	return &h
}

// Record adds a single latency sample.
func (h *Histogram) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	ns := int64(d)

	h.count.Add(1)
	h.sum.Add(ns)

	for {
		cur := h.min.Load()
		if ns >= cur || h.min.CompareAndSwap(cur, ns) {
			break
		}
	}

	for {
		cur := h.max.Load()
		if ns <= cur || h.max.CompareAndSwap(cur, ns) {
			break
		}
	}

	h.buckets[bucketFor(d)].Add(1)
}

// Snapshot returns the current state of the histogram.
func (h *Histogram) Snapshot() LatencySnapshot {
	snap := LatencySnapshot{
		Count: h.count.Load(),
		Max:   time.Duration(h.max.Load()),
	}

	if snap.Count == 0 {
		return snap
	}

	snap.Min = time.Duration(h.min.Load())
	snap.Mean = time.Duration(h.sum.Load() / int64(snap.Count))

	for i := range h.buckets {
		snap.Buckets[i] = h.buckets[i].Load()
	}

	return snap
}

// bucketFor returns the index of the power of two microsecond bucket.
func bucketFor(d time.Duration) int {
	us := d.Microseconds()

	idx := 0
	for us > 1 && idx < bucketCount-1 {
		us >>= 1
		idx++
	}

	return idx
}
