// Package simnet is an in-memory "simulated network" implementing
// transport.Endpoint, used by tests to exercise the consensus core
// under message loss, delay, reordering, and partitions without the
// nondeterminism of a real socket.
package simnet

import (
	"math/rand"
	"sync"
	"time"

	"github.com/arcflux/ledgerraft/internal/transport"
)

// Hub is a shared medium that a fixed set of named endpoints register
// with. It owns the fault-injection knobs: a uniform drop probability,
// a delay range applied to every delivered frame (which is what
// produces reordering), and a partition map.
type Hub struct {
	mu        sync.Mutex
	inboxes   map[string]chan []byte
	dropRate  float64
	minDelay  time.Duration
	maxDelay  time.Duration
	partition map[string]int // id -> partition group; 0 means "no partition configured"
	rng       *rand.Rand
}

// NewHub creates an empty hub with no fault injection configured.
func NewHub() *Hub {
	return &Hub{
		inboxes:   make(map[string]chan []byte),
		partition: make(map[string]int),
		rng:       rand.New(rand.NewSource(1)),
	}
}

// SetFaults configures the hub's loss rate and per-frame delay jitter.
// dropRate is the probability, in [0,1], that a sent frame is silently
// discarded. Delays are drawn uniformly from [minDelay, maxDelay).
func (h *Hub) SetFaults(dropRate float64, minDelay, maxDelay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropRate = dropRate
	h.minDelay = minDelay
	h.maxDelay = maxDelay
}

// Partition assigns each id in groups[i] to partition group i+1. Frames
// between two ids in different groups are dropped; an id not listed in
// any group still reaches, and is reached by, every other id. Passing a
// single group containing every id (or calling Heal) removes all
// partitions.
func (h *Hub) Partition(groups ...[]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partition = make(map[string]int)
	for i, group := range groups {
		for _, id := range group {
			h.partition[id] = i + 1
		}
	}
}

// Heal removes any partition configuration; every registered id can
// reach every other one again.
func (h *Hub) Heal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partition = make(map[string]int)
}

// Register creates (or returns, if already registered) the endpoint
// for id on this hub.
func (h *Hub) Register(id string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inboxes[id]; !ok {
		h.inboxes[id] = make(chan []byte, 256)
	}
	return &Endpoint{hub: h, id: id}
}

func (h *Hub) deliver(src, dst string, frame []byte) {
	h.mu.Lock()
	drop := h.dropRate > 0 && h.rng.Float64() < h.dropRate
	if !drop && len(h.partition) > 0 {
		srcGroup, srcOK := h.partition[src]
		dstGroup, dstOK := h.partition[dst]
		if srcOK && dstOK && srcGroup != dstGroup {
			drop = true
		}
	}
	var delay time.Duration
	if h.maxDelay > h.minDelay {
		delay = h.minDelay + time.Duration(h.rng.Int63n(int64(h.maxDelay-h.minDelay)))
	} else {
		delay = h.minDelay
	}
	inbox, ok := h.inboxes[dst]
	h.mu.Unlock()

	if drop || !ok {
		return
	}

	send := func() {
		select {
		case inbox <- frame:
		default:
			// Inbox full: the transport is free to drop under
			// backpressure, per the spec's resource model.
		}
	}
	if delay <= 0 {
		send()
		return
	}
	time.AfterFunc(delay, send)
}

// Endpoint is one hub-registered participant's view of the simulated
// network. It satisfies transport.Endpoint.
type Endpoint struct {
	hub    *Hub
	id     string
	closed bool
	mu     sync.Mutex
}

var _ transport.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) Send(dst string, frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	e.hub.deliver(e.id, dst, cp)
	return nil
}

func (e *Endpoint) Recv(quantum time.Duration) ([]byte, bool, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, false, transport.ErrClosed
	}

	e.hub.mu.Lock()
	inbox := e.hub.inboxes[e.id]
	e.hub.mu.Unlock()

	select {
	case frame := <-inbox:
		return frame, true, nil
	case <-time.After(quantum):
		return nil, false, nil
	}
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
