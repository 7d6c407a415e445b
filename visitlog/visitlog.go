// Package visitlog records resolution attempts, at most once per
// (shortlink, ip) inside the dedup window.
package visitlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/google/uuid"
)

const (
	DefaultWindow  = time.Hour
	DefaultTimeout = 5 * time.Second
	errBuffer      = 64
)

// Logger writes visits through a VisitRepository. The dedup check and the
// insert are separate calls, so two identical concurrent visits may both be
// stored.
type Logger struct {
	visits  store.VisitRepository
	window  time.Duration
	timeout time.Duration
	now     func() time.Time

	errs chan error
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(visits store.VisitRepository, window, timeout time.Duration) *Logger {
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Logger{
		visits:  visits,
		window:  window,
		timeout: timeout,
		now:     time.Now,
		errs:    make(chan error, errBuffer),
	}
}

// Record stores visit unless the same IP already visited the same shortlink
// within the window. It reports whether a record was written.
func (l *Logger) Record(ctx context.Context, visit *model.Visit) (bool, error) {
	if visit.VisitedAt.IsZero() {
		visit.VisitedAt = l.now()
	}
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}

	recent, err := l.visits.HasRecent(ctx, visit.ShortlinkKey, visit.IP, visit.VisitedAt.Add(-l.window))
	if err != nil {
		return false, fmt.Errorf("check recent visit for %s: %w", visit.ShortlinkKey, err)
	}
	if recent {
		return false, nil
	}

	if err := l.visits.Insert(ctx, visit); err != nil {
		return false, fmt.Errorf("insert visit for %s: %w", visit.ShortlinkKey, err)
	}
	return true, nil
}

// Dispatch records visit in the background under its own timeout. Failures
// go to Errors; when nobody drains it fast enough they are dropped. Visits
// dispatched after Close are discarded.
func (l *Logger) Dispatch(visit model.Visit) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if _, err := l.Record(ctx, &visit); err != nil {
			select {
			case l.errs <- err:
			default:
			}
		}
	}()
}

// Errors yields background recording failures.
func (l *Logger) Errors() <-chan error {
	return l.errs
}

// Wait blocks until every dispatched visit has finished.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// Close stops accepting visits, waits for in-flight ones and closes the
// error channel. Calling it again is a no-op.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
	close(l.errs)
}
