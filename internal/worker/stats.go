package worker

import (
	"fmt"
	"time"
)

// Stats accumulates timing samples and tallies for one run. It is owned by the
// single goroutine that consumes completions and is not safe for concurrent use.
type Stats struct {
	total       int
	concurrency int
	started     time.Time

	samples   []float64 // seconds, append-only
	sum       float64
	completed int
	succeeded int
	failed    int
}

// Snapshot is a point-in-time view of run statistics.
type Snapshot struct {
	Total     int
	Completed int
	Succeeded int
	Failed    int
	Elapsed   time.Duration

	// AvgPerEmail is the mean task duration in seconds.
	AvgPerEmail float64
	// ETA is AvgPerEmail × remaining tasks ÷ concurrency.
	ETA time.Duration
	// Throughput is completions per minute of elapsed wall-clock time.
	Throughput float64
}

// NewStats creates a tracker for total tasks executed by concurrency workers.
func NewStats(total, concurrency int, started time.Time) *Stats {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Stats{
		total:       total,
		concurrency: concurrency,
		started:     started,
	}
}

// Record counts one completion. sample is false for tasks that never ran
// (cancelled before submission), which are tallied but not timed.
func (s *Stats) Record(ok bool, d time.Duration, sample bool, at time.Time) Snapshot {
	s.completed++
	if ok {
		s.succeeded++
	} else {
		s.failed++
	}
	if sample {
		secs := d.Seconds()
		s.samples = append(s.samples, secs)
		s.sum += secs
	}
	return s.Snapshot(at)
}

// Snapshot computes derived statistics as of at.
func (s *Stats) Snapshot(at time.Time) Snapshot {
	snap := Snapshot{
		Total:     s.total,
		Completed: s.completed,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Elapsed:   at.Sub(s.started),
	}

	if len(s.samples) > 0 {
		snap.AvgPerEmail = s.sum / float64(len(s.samples))
	}

	remaining := s.total - s.completed
	eta := snap.AvgPerEmail * float64(remaining) / float64(s.concurrency)
	snap.ETA = time.Duration(int64(eta)) * time.Second

	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.Throughput = float64(s.completed) / secs * 60
	}

	return snap
}

// Percentage is the share of tasks completed, 0–100.
func (s Snapshot) Percentage() float64 {
	return percentage(s.Completed, s.Total)
}

// FormatETA renders d as H:MM:SS, prefixed with a day count past 24 hours.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	switch {
	case days == 1:
		return "1 day, " + clock
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
	return clock
}
