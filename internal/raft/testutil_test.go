package raft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/metrics"
	"github.com/arcflux/ledgerraft/internal/store"
	"github.com/arcflux/ledgerraft/internal/transport"
	"github.com/arcflux/ledgerraft/internal/transport/simnet"
	"github.com/arcflux/ledgerraft/internal/wire"
)

// fakeEndpoint is a transport.Endpoint double for unit-testing a
// single Replica's handlers in isolation: Send just records the
// decoded message instead of delivering it anywhere.
type fakeEndpoint struct {
	mu     sync.Mutex
	sent   []wire.Message
	recvCh chan []byte
}

var _ transport.Endpoint = (*fakeEndpoint)(nil)

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{recvCh: make(chan []byte, 64)}
}

func (f *fakeEndpoint) Send(dst string, frame []byte) error {
	msg, err := wire.Decode(frame)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) Recv(quantum time.Duration) ([]byte, bool, error) {
	select {
	case frame := <-f.recvCh:
		return frame, true, nil
	case <-time.After(quantum):
		return nil, false, nil
	}
}

func (f *fakeEndpoint) Close() error { return nil }

func (f *fakeEndpoint) lastSent() (wire.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return wire.Message{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeEndpoint) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestReplica(id string, peers []string, ep transport.Endpoint) *Replica {
	return New(id, peers, DefaultConfig(), ep, store.New(), metrics.NewRecorder(), zap.NewNop())
}

// testCluster runs n real Replicas wired through a shared simnet.Hub,
// with accelerated timers so tests converge quickly.
type testCluster struct {
	hub      *simnet.Hub
	replicas []*Replica
	ids      []string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func fastConfig() Config {
	return Config{
		ElectionMin:       40 * time.Millisecond,
		ElectionMax:       80 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		Quantum:           10 * time.Millisecond,
	}
}

func newTestCluster(n int) *testCluster {
	hub := simnet.NewHub()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	tc := &testCluster{hub: hub, ids: ids, cancel: cancel}

	for _, id := range ids {
		peers := make([]string, 0, n-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		ep := hub.Register(id)
		r := New(id, peers, fastConfig(), ep, store.New(), metrics.NewRecorder(), zap.NewNop())
		tc.replicas = append(tc.replicas, r)
	}

	for _, r := range tc.replicas {
		r := r
		tc.wg.Add(1)
		go func() {
			defer tc.wg.Done()
			_ = r.Run(ctx)
		}()
	}

	return tc
}

func (tc *testCluster) stop() {
	tc.cancel()
	tc.wg.Wait()
}

// awaitLeader polls until exactly one replica reports itself Leader,
// or the timeout elapses.
func (tc *testCluster) awaitLeader(timeout time.Duration) *Replica {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var leaders []*Replica
		for _, r := range tc.replicas {
			if r.Status().Role == string(RoleLeader) {
				leaders = append(leaders, r)
			}
		}
		if len(leaders) == 1 {
			return leaders[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// clientCall registers a throwaway client endpoint on the hub, sends
// req to dst, and returns the first reply (or ok=false on timeout).
func (tc *testCluster) clientCall(clientID, dst string, req wire.Message) (wire.Message, bool) {
	ep := tc.hub.Register(clientID)
	req.Src = clientID
	req.Dst = dst
	frame, err := wire.Encode(req)
	if err != nil {
		return wire.Message{}, false
	}
	if err := ep.Send(dst, frame); err != nil {
		return wire.Message{}, false
	}
	respFrame, ok, err := ep.Recv(time.Second)
	if err != nil || !ok {
		return wire.Message{}, false
	}
	resp, err := wire.Decode(respFrame)
	if err != nil {
		return wire.Message{}, false
	}
	return resp, true
}
