// Package progress tracks per-file and batch-wide upload progress and
// renders it to the terminal.
package progress

import (
	"math"
	"sync"
)

// Record is one file's progress snapshot.
type Record struct {
	FileName      string
	UploadedBytes int64
	TotalBytes    int64
	Multipart     bool
	Done          bool
	Success       bool
	Cancelled     bool
	ErrorMsg      string
}

// Aggregate summarizes a whole batch.
type Aggregate struct {
	Files         int
	Completed     int
	Failed        int
	Cancelled     int
	UploadedBytes int64
	TotalBytes    int64
	Percent       int
}

// Tracker collects progress records keyed by file name. All methods are
// safe for concurrent use; updates for one file are last-write-wins and
// the uploaded byte count never decreases.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []string
	onUpdate func(Record)
}

// NewTracker creates an empty Tracker. onUpdate, if non-nil, is invoked
// with a copy of the record after every change, serialized under the
// tracker lock.
func NewTracker(onUpdate func(Record)) *Tracker {
	return &Tracker{
		records:  map[string]*Record{},
		onUpdate: onUpdate,
	}
}

// Begin registers a file before its first byte moves.
func (t *Tracker) Begin(name string, totalBytes int64, multipart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[name]; !ok {
		t.order = append(t.order, name)
	}
	rec := &Record{FileName: name, TotalBytes: totalBytes, Multipart: multipart}
	t.records[name] = rec
	t.fireLocked(rec)
}

// Update records cumulative uploaded bytes for a file. Values below the
// current count are ignored so observers never see progress go backwards,
// and values above the total are clamped to it.
func (t *Tracker) Update(name string, uploadedBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	if !ok || rec.Done {
		return
	}
	if uploadedBytes > rec.TotalBytes {
		uploadedBytes = rec.TotalBytes
	}
	if uploadedBytes <= rec.UploadedBytes {
		return
	}
	rec.UploadedBytes = uploadedBytes
	t.fireLocked(rec)
}

// Finish marks a file as successfully uploaded. The byte count snaps to
// the total so the final record always reads 100%.
func (t *Tracker) Finish(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	if !ok {
		return
	}
	rec.UploadedBytes = rec.TotalBytes
	rec.Done = true
	rec.Success = true
	t.fireLocked(rec)
}

// Fail marks a file as failed, keeping whatever bytes made it through.
func (t *Tracker) Fail(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	if !ok {
		return
	}
	rec.Done = true
	rec.Success = false
	if err != nil {
		rec.ErrorMsg = err.Error()
	}
	t.fireLocked(rec)
}

// Cancel marks a file as cancelled, distinct from failed in the summary.
func (t *Tracker) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	if !ok {
		return
	}
	rec.Done = true
	rec.Success = false
	rec.Cancelled = true
	t.fireLocked(rec)
}

// Record returns a copy of one file's record.
func (t *Tracker) Record(name string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all records in registration order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.records[name])
	}
	return out
}

// Summary computes the batch aggregate. Percent is derived from bytes,
// rounded, and clamped to [0, 100].
func (t *Tracker) Summary() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := Aggregate{Files: len(t.order)}
	for _, name := range t.order {
		rec := t.records[name]
		agg.UploadedBytes += rec.UploadedBytes
		agg.TotalBytes += rec.TotalBytes
		if !rec.Done {
			continue
		}
		switch {
		case rec.Success:
			agg.Completed++
		case rec.Cancelled:
			agg.Cancelled++
		default:
			agg.Failed++
		}
	}

	total := agg.TotalBytes
	if total < 1 {
		total = 1
	}
	frac := float64(agg.UploadedBytes) / float64(total)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	agg.Percent = int(math.Round(frac * 100))
	return agg
}

func (t *Tracker) fireLocked(rec *Record) {
	if t.onUpdate != nil {
		t.onUpdate(*rec)
	}
}
