package event

import (
	"context"
	"sync"
	"time"
)

// PollInterval is how often a bounded wait re-checks its slot.
const PollInterval = 10 * time.Millisecond

// Stamped is a value with the time it was recorded.
type Stamped[T any] struct {
	Value T
	Time  time.Time
}

// Single correlates one request with at most one response. A later
// response overwrites an earlier one.
type Single[Req, Resp any] struct {
	mu       sync.Mutex
	req      Req
	reqTime  time.Time
	resp     Resp
	respTime time.Time
	has      bool
	recorded bool
}

// Request returns the recorded request and whether one was recorded.
func (e *Single[Req, Resp]) Request() (Req, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req, e.recorded
}

// RequestTime returns when the request was recorded.
func (e *Single[Req, Resp]) RequestTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reqTime
}

// Response returns the response and whether one has arrived.
func (e *Single[Req, Resp]) Response() (Resp, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resp, e.has
}

// ResponseTime returns when the response was recorded.
func (e *Single[Req, Resp]) ResponseTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respTime
}

// HasResponse reports whether a response has arrived.
func (e *Single[Req, Resp]) HasResponse() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.has
}

// Wait blocks until a response arrives, timeout elapses or ctx is done.
//
// Returns:
//   - Resp: The response
//   - error: ErrNoResponse on timeout, ctx.Err() on cancellation
func (e *Single[Req, Resp]) Wait(ctx context.Context, timeout time.Duration) (Resp, error) {
	err := poll(ctx, timeout, e.HasResponse)
	resp, _ := e.Response()
	return resp, err
}

func (e *Single[Req, Resp]) setRequest(req Req, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero Resp
	e.req, e.reqTime, e.recorded = req, now, true
	e.resp, e.respTime, e.has = zero, time.Time{}, false
}

func (e *Single[Req, Resp]) setResponse(resp Resp, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recorded {
		return false
	}
	e.resp, e.respTime, e.has = resp, now, true
	return true
}

func (e *Single[Req, Resp]) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	var (
		zeroReq  Req
		zeroResp Resp
	)
	e.req, e.reqTime, e.recorded = zeroReq, time.Time{}, false
	e.resp, e.respTime, e.has = zeroResp, time.Time{}, false
}

// Multi correlates one request with any number of responses kept in arrival
// order.
type Multi[Req, Resp any] struct {
	mu       sync.Mutex
	req      Req
	reqTime  time.Time
	recorded bool
	resps    []Stamped[Resp]
}

// Request returns the recorded request and whether one was recorded.
func (e *Multi[Req, Resp]) Request() (Req, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req, e.recorded
}

// RequestTime returns when the request was recorded.
func (e *Multi[Req, Resp]) RequestTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reqTime
}

// Responses returns a copy of all responses in arrival order.
func (e *Multi[Req, Resp]) Responses() []Stamped[Resp] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Stamped[Resp], len(e.resps))
	copy(out, e.resps)
	return out
}

// Len returns the number of responses.
func (e *Multi[Req, Resp]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.resps)
}

// First returns the earliest response.
func (e *Multi[Req, Resp]) First() (Resp, bool) {
	return e.At(0)
}

// At returns the i-th response in arrival order.
func (e *Multi[Req, Resp]) At(i int) (Resp, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.resps) {
		var zero Resp
		return zero, false
	}
	return e.resps[i].Value, true
}

// Find returns the earliest response matching pred.
func (e *Multi[Req, Resp]) Find(pred func(Resp) bool) (Resp, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.resps {
		if pred(r.Value) {
			return r.Value, true
		}
	}
	var zero Resp
	return zero, false
}

// HasResponse reports whether at least one response has arrived.
func (e *Multi[Req, Resp]) HasResponse() bool {
	return e.Len() > 0
}

// Wait blocks until a response matching pred arrives, timeout elapses or
// ctx is done. A nil pred matches any response.
func (e *Multi[Req, Resp]) Wait(ctx context.Context, timeout time.Duration, pred func(Resp) bool) (Resp, error) {
	if pred == nil {
		pred = func(Resp) bool { return true }
	}
	err := poll(ctx, timeout, func() bool {
		_, ok := e.Find(pred)
		return ok
	})
	resp, _ := e.Find(pred)
	return resp, err
}

func (e *Multi[Req, Resp]) setRequest(req Req, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req, e.reqTime, e.recorded = req, now, true
	e.resps = nil
}

func (e *Multi[Req, Resp]) addResponse(resp Resp, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recorded {
		return false
	}
	e.resps = append(e.resps, Stamped[Resp]{Value: resp, Time: now})
	return true
}

func (e *Multi[Req, Resp]) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero Req
	e.req, e.reqTime, e.recorded = zero, time.Time{}, false
	e.resps = nil
}

// poll checks done every PollInterval until it reports true.
func poll(ctx context.Context, timeout time.Duration, done func() bool) error {
	if done() {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if done() {
				return nil
			}
			return ErrNoResponse
		case <-ticker.C:
			if done() {
				return nil
			}
		}
	}
}
