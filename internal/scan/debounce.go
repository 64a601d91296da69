package scan

import (
	"sync"
	"time"
)

// RecentMark is one entry of the recent matches log. It is for display only;
// the server owns the attendance record.
type RecentMark struct {
	SubjectID     int64     `json:"subject_id"`
	SubjectName   string    `json:"subject_name"`
	AlreadyMarked bool      `json:"already_marked"`
	Distance      float64   `json:"distance"`
	Sequence      uint64    `json:"sequence"`
	At            time.Time `json:"at"`
}

// Decision tells the caller whether a match deserves a cue.
type Decision struct {
	Notify bool        `json:"notify"`
	Mark   *RecentMark `json:"mark,omitempty"`
}

// Debouncer suppresses repeated cues for the same subject within a cooldown
// and keeps a bounded, most-recent-first log of matches.
type Debouncer struct {
	cooldown time.Duration
	limit    int

	mu     sync.Mutex
	last   map[int64]time.Time
	recent []RecentMark
	seq    uint64
}

// NewDebouncer creates a debouncer with a per-subject cooldown and a recent
// log capped at limit entries.
func NewDebouncer(cooldown time.Duration, limit int) *Debouncer {
	if limit <= 0 {
		limit = 1
	}
	return &Debouncer{
		cooldown: cooldown,
		limit:    limit,
		last:     make(map[int64]time.Time),
	}
}

// Accept records a matched outcome. Other outcomes are ignored.
//
// The subject's cooldown entry is refreshed only once the previous one has
// expired. A subject the server reports as already marked never gets a cue.
func (d *Debouncer) Accept(o Outcome, now time.Time) Decision {
	if o.Kind != KindMatched {
		return Decision{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := true
	if last, ok := d.last[o.SubjectID]; ok && now.Sub(last) <= d.cooldown {
		elapsed = false
	}
	if elapsed {
		d.last[o.SubjectID] = now
	}

	d.seq++
	mark := RecentMark{
		SubjectID:     o.SubjectID,
		SubjectName:   o.SubjectName,
		AlreadyMarked: o.AlreadyMarked,
		Distance:      o.Distance,
		Sequence:      d.seq,
		At:            now,
	}
	d.recent = append([]RecentMark{mark}, d.recent[:min(len(d.recent), d.limit-1)]...)

	return Decision{Notify: elapsed && !o.AlreadyMarked, Mark: &mark}
}

// Recent returns a copy of the recent matches, most recent first.
func (d *Debouncer) Recent() []RecentMark {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecentMark, len(d.recent))
	copy(out, d.recent)
	return out
}

// Prune drops cooldown entries older than maxAge and returns how many were
// removed. The recent log is not affected.
func (d *Debouncer) Prune(now time.Time, maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for id, last := range d.last {
		if now.Sub(last) > maxAge {
			delete(d.last, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of subjects with a cooldown entry.
func (d *Debouncer) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
