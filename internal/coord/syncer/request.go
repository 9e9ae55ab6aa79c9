package syncer

import (
	"context"
	"sync"
)

// Request scopes the page-load trigger to a single admin request.
// The first OnPageLoad runs a pass; later calls in the same request are
// suppressed and return the first result.
type Request struct {
	c *Coordinator

	mu     sync.Mutex
	ran    bool
	result PassResult
	err    error
}

// NewRequest starts a request scope.
func (c *Coordinator) NewRequest() *Request {
	return &Request{c: c}
}

// OnPageLoad runs a pass unless one already ran in this request.
// ran reports whether this call ran the pass.
func (r *Request) OnPageLoad(ctx context.Context) (result PassResult, ran bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ran {
		return r.result, false, r.err
	}
	r.ran = true
	r.result, r.err = r.c.Run(ctx, TriggerPageLoad)
	return r.result, true, r.err
}

// Ran reports whether the page-load pass already ran in this request.
func (r *Request) Ran() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ran
}
