package pipeline

import (
	"context"
	"sync"

	"github.com/okian/clutch/internal/domain/model"
)

type jobKey struct {
	session string
	stream  model.StreamKind
}

// cancels tracks the cancel func of every in-flight stream job.
type cancels struct {
	mu    sync.Mutex
	funcs map[jobKey]context.CancelFunc
}

func newCancels() *cancels {
	return &cancels{funcs: make(map[jobKey]context.CancelFunc)}
}

func (c *cancels) add(session string, stream model.StreamKind, fn context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[jobKey{session, stream}] = fn
}

func (c *cancels) remove(session string, stream model.StreamKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.funcs, jobKey{session, stream})
}

// cancel aborts every in-flight job of session and reports how many there were.
func (c *cancels) cancel(session string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, kind := range model.Streams() {
		k := jobKey{session, kind}
		if fn, ok := c.funcs[k]; ok {
			fn()
			delete(c.funcs, k)
			n++
		}
	}
	return n
}

func (c *cancels) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.funcs)
}
