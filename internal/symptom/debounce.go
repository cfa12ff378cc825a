package symptom

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"symptom-interview/internal/interview"
)

// DefaultDebounce is how long input must settle before a search runs.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer runs only the last of a burst of calls. Triggering again before
// the delay elapses cancels the pending call.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

type Searcher interface {
	Search(ctx context.Context, query string, age int) (interview.SearchResult, error)
}

// DeliverFunc receives the result of a settled search.
type DeliverFunc func(query string, res interview.SearchResult, err error)

// Typeahead debounces keystrokes into searches. Searches never overlap: a
// search that settles while another is running waits for it. A result whose
// query was superseded by later input is dropped.
type Typeahead struct {
	searcher  Searcher
	debouncer *Debouncer
	deliver   DeliverFunc

	running sync.Mutex
	latest  atomic.Uint64
}

func NewTypeahead(searcher Searcher, delay time.Duration, deliver DeliverFunc) *Typeahead {
	return &Typeahead{
		searcher:  searcher,
		debouncer: NewDebouncer(delay),
		deliver:   deliver,
	}
}

// Input records a keystroke. Only the last input of a burst is searched.
func (t *Typeahead) Input(ctx context.Context, query string, age int) {
	gen := t.latest.Add(1)
	t.debouncer.Trigger(func() {
		t.running.Lock()
		defer t.running.Unlock()
		if ctx.Err() != nil || t.latest.Load() != gen {
			return
		}
		res, err := t.searcher.Search(ctx, query, age)
		if t.latest.Load() != gen {
			return
		}
		t.deliver(query, res, err)
	})
}

func (t *Typeahead) Close() {
	t.latest.Add(1)
	t.debouncer.Stop()
}
