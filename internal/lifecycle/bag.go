// Package lifecycle groups subscription handles so one call releases them all.
package lifecycle

import (
	"errors"
	"io"
	"sync"
)

// Bag collects release functions. Dispose runs them in reverse order of
// addition. Anything added after Dispose is released immediately.
type Bag struct {
	mu       sync.Mutex
	fns      []func() error
	disposed bool
}

func (b *Bag) Add(fn func() error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		_ = fn()
		return
	}
	b.fns = append(b.fns, fn)
	b.mu.Unlock()
}

func (b *Bag) AddCloser(c io.Closer) {
	b.Add(c.Close)
}

// Dispose releases everything in the bag. Calling it again is a no-op.
func (b *Bag) Dispose() error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil
	}
	b.disposed = true
	fns := b.fns
	b.fns = nil
	b.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fns)
}
