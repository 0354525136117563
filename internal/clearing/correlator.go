package clearing

import (
	"sync"

	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/wire"
)

// callResult is what a waiting caller receives: either a decoded frame or the
// transport failure that voided the request.
type callResult struct {
	in  wire.Inbound
	err error
}

// correlator matches inbound frames to outstanding requests by the sender
// generated request id. The listener is always registered before the frame is
// transmitted, so a response can never race past its waiter.
type correlator struct {
	mu      sync.Mutex
	pending map[uint64]chan callResult
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint64]chan callResult)}
}

func (c *correlator) register(id uint64) (chan callResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, fault.Newf(fault.KindProtocol, "clearing.register", "request id %d already in flight", id)
	}
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	return ch, nil
}

// unregister removes a listener that timed out or was cancelled. A response
// arriving afterwards is dropped by dispatch instead of waking a dead waiter.
func (c *correlator) unregister(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dispatch delivers one inbound frame and reports whether a waiter matched.
func (c *correlator) dispatch(in wire.Inbound) bool {
	c.mu.Lock()
	ch, ok := c.pending[in.CorrelationID()]
	if ok {
		delete(c.pending, in.CorrelationID())
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- callResult{in: in}
	return true
}

// failAll voids every outstanding request, typically on connection loss.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan callResult)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

func (c *correlator) inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
