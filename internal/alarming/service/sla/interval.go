package sla

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

func (iv Interval) valid() bool { return iv.End.After(iv.Start) }

// Merge combines overlapping or touching intervals into minimal
// non-overlapping ranges. Adjacency counts as overlap: an interval starting
// exactly at the prior end merges. Idempotent: merging merged output is a
// no-op. Empty or inverted inputs are dropped.
func Merge(ivs []Interval) []Interval {
	in := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.valid() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes sub from ivs, splitting intervals around each overlap into
// zero, one or two remaining pieces. Both inputs are merged first; the result
// is merged and sorted.
func Subtract(ivs, sub []Interval) []Interval {
	merged := Merge(ivs)
	cut := Merge(sub)
	if len(cut) == 0 {
		return merged
	}
	var out []Interval
	for _, iv := range merged {
		pieces := []Interval{iv}
		for _, s := range cut {
			var next []Interval
			for _, p := range pieces {
				if !s.Start.Before(p.End) || !s.End.After(p.Start) {
					next = append(next, p)
					continue
				}
				if s.Start.After(p.Start) {
					next = append(next, Interval{Start: p.Start, End: s.Start})
				}
				if s.End.Before(p.End) {
					next = append(next, Interval{Start: s.End, End: p.End})
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return Merge(out)
}

// Clip bounds iv to [from, to), reporting false when nothing remains.
func Clip(iv Interval, from, to time.Time) (Interval, bool) {
	if iv.Start.Before(from) {
		iv.Start = from
	}
	if iv.End.After(to) {
		iv.End = to
	}
	if !iv.valid() {
		return Interval{}, false
	}
	return iv, true
}

// SumMinutes totals the durations of a set of intervals in minutes.
func SumMinutes(ivs []Interval) float64 {
	var total time.Duration
	for _, iv := range ivs {
		total += iv.Duration()
	}
	return total.Minutes()
}
