package update

import (
	"io"
	"sync"

	"github.com/adamancini/hatch/internal/release"
)

// batchProgress aggregates per-entry progress over a batch of entries. Each
// entry gets a share proportional to its declared size, or an equal share when
// the batch declares no size at all.
type batchProgress struct {
	mu     sync.Mutex
	report ProgressFunc
	shares []float64
	base   float64
	last   int
}

func newBatchProgress(entries []release.Entry, report ProgressFunc) *batchProgress {
	var total int64
	for _, e := range entries {
		total += e.Filesize
	}
	shares := make([]float64, len(entries))
	for i, e := range entries {
		if total > 0 {
			shares[i] = float64(e.Filesize) / float64(total)
		} else {
			shares[i] = 1 / float64(len(entries))
		}
	}
	return &batchProgress{report: report, shares: shares, last: -1}
}

// update reports that entry i is fraction complete.
func (b *batchProgress) update(i int, fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emit(b.base + b.shares[i]*fraction)
}

// done marks entry i as finished.
func (b *batchProgress) done(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base += b.shares[i]
	b.emit(b.base)
}

func (b *batchProgress) emit(fraction float64) {
	pct := int(fraction*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	if pct <= b.last {
		return
	}
	b.last = pct
	if b.report != nil {
		b.report(pct)
	}
}

// Scale maps the 0..100 progress of one stage onto [lo, hi] of report.
func Scale(report ProgressFunc, lo, hi int) ProgressFunc {
	if report == nil {
		return nil
	}
	return func(percent int) {
		report(lo + (hi-lo)*percent/100)
	}
}

// Monotonic wraps report so it only sees non-decreasing values.
func Monotonic(report ProgressFunc) ProgressFunc {
	if report == nil {
		return func(int) {}
	}
	var mu sync.Mutex
	last := -1
	return func(percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent <= last {
			return
		}
		last = percent
		report(percent)
	}
}

// progressReader counts bytes read and reports the fraction of want.
type progressReader struct {
	r      io.Reader
	read   int64
	want   int64
	notify func(fraction float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.want > 0 && p.notify != nil {
		p.notify(float64(p.read) / float64(p.want))
	}
	return n, err
}
