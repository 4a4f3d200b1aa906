// Package raft implements the replication core: the leader-election
// state machine, the replicated log with its matching/commit rules,
// and the client get/put pipeline. Everything in this package runs on
// a single goroutine per Replica (Run) — there is no internal locking
// because there is no concurrent access to replica state; the debug
// HTTP surface in internal/httpapi only ever sees a copied Status
// snapshot, guarded by its own small mutex.
package raft

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/metrics"
	"github.com/arcflux/ledgerraft/internal/store"
	"github.com/arcflux/ledgerraft/internal/transport"
	"github.com/arcflux/ledgerraft/internal/wire"
)

// Role is one of the three states a replica can be in.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Config holds the timing constants that drive the event loop. The
// zero value is not usable; construct via DefaultConfig and override
// as needed.
type Config struct {
	ElectionMin       time.Duration
	ElectionMax       time.Duration
	HeartbeatInterval time.Duration
	Quantum           time.Duration
}

// DefaultConfig returns the reference timing bounds: a [250ms, 500ms]
// election timeout, a heartbeat interval of ElectionMin/10, and a
// 100ms bounded transport wait.
func DefaultConfig() Config {
	return Config{
		ElectionMin:       250 * time.Millisecond,
		ElectionMax:       500 * time.Millisecond,
		HeartbeatInterval: 25 * time.Millisecond,
		Quantum:           100 * time.Millisecond,
	}
}

// pendingPut is a put awaiting commit on the leader.
type pendingPut struct {
	src         string
	mid         string
	requestedAt time.Time
}

// Status is a read-only snapshot of a replica's state, safe to read
// from outside the consensus loop.
type Status struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	Term           int    `json:"term"`
	Leader         string `json:"leader"`
	LogLength      int    `json:"logLength"`
	CommittedIndex int    `json:"committedIndex"`
}

// Replica is one participant in the cluster. All fields below this
// comment are owned exclusively by the goroutine running Run; do not
// touch them from another goroutine. The only exception is status,
// guarded by statusMu, which Status() exposes to other goroutines.
type Replica struct {
	id     string
	peers  []string
	config Config
	logger *zap.Logger
	rng    *rand.Rand

	endpoint transport.Endpoint
	store    *store.Store
	metrics  *metrics.Recorder

	role           Role
	currentTerm    int
	votedFor       map[int]string
	log            []wire.Entry
	leaderID       string
	committedIndex int

	votesReceived int
	nextIndex     map[string]int
	pendingPuts   map[int]pendingPut

	electionDeadline  time.Time
	heartbeatDeadline time.Time

	statusMu sync.Mutex
	status   Status
}

// New constructs a Follower replica. peers must list every other
// replica id in the cluster (self excluded).
func New(id string, peers []string, cfg Config, endpoint transport.Endpoint, st *store.Store, rec *metrics.Recorder, logger *zap.Logger) *Replica {
	r := &Replica{
		id:             id,
		peers:          append([]string(nil), peers...),
		config:         cfg,
		logger:         logger.With(zap.String("id", id)),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		endpoint:       endpoint,
		store:          st,
		metrics:        rec,
		role:           RoleFollower,
		votedFor:       make(map[int]string),
		leaderID:       wire.Broadcast,
		committedIndex: -1,
		nextIndex:      make(map[string]int),
		pendingPuts:    make(map[int]pendingPut),
	}
	r.updateStatus()
	return r
}

// Status returns a snapshot of the replica's current state.
func (r *Replica) Status() Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.status
}

func (r *Replica) updateStatus() {
	r.statusMu.Lock()
	r.status = Status{
		ID:             r.id,
		Role:           string(r.role),
		Term:           r.currentTerm,
		Leader:         r.leaderID,
		LogLength:      len(r.log),
		CommittedIndex: r.committedIndex,
	}
	r.statusMu.Unlock()
}

// Run is the event loop: it alternates a bounded wait on the
// transport with a check of the role-specific deadline, until ctx is
// canceled.
func (r *Replica) Run(ctx context.Context) error {
	r.resetElectionTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok, err := r.endpoint.Recv(r.config.Quantum)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if ok {
			msg, derr := wire.Decode(frame)
			if derr != nil {
				r.logger.Debug("dropping unparseable datagram", zap.Error(derr))
			} else {
				r.handleMessage(msg)
			}
		}

		r.checkTimers()
		r.updateStatus()
	}
}

// checkTimers fires the role-appropriate deadline action. An
// unrecognized role is a programming error, not a recoverable
// condition: we log fatally and the process exits, per the error
// handling design.
func (r *Replica) checkTimers() {
	now := time.Now()
	switch r.role {
	case RoleFollower, RoleCandidate:
		if now.After(r.electionDeadline) {
			r.startElection()
		}
	case RoleLeader:
		if now.After(r.heartbeatDeadline) {
			r.emitAppendRound()
			r.advanceCommit()
			r.resetHeartbeatTimer()
		}
	default:
		r.logger.Fatal("unrecognized internal role", zap.String("role", string(r.role)))
	}
}

// handleMessage applies the universal term-adoption rule before
// dispatching by role: any inbound message carrying a strictly
// greater term and a real (non-broadcast) leader field causes an
// immediate term adoption and demotion to Follower.
func (r *Replica) handleMessage(msg wire.Message) {
	if msg.Term > r.currentTerm && msg.Leader != "" && msg.Leader != wire.Broadcast {
		r.becomeFollower(msg.Term, msg.Leader)
	}

	switch r.role {
	case RoleFollower:
		r.dispatchFollower(msg)
	case RoleCandidate:
		r.dispatchCandidate(msg)
	case RoleLeader:
		r.dispatchLeader(msg)
	default:
		r.logger.Fatal("unrecognized internal role", zap.String("role", string(r.role)))
	}
}

// majority is floor((N+1)/2) + 1 where N is the peer count (self
// excluded). For N=0 this is 1: a single-replica cluster is always
// its own majority.
func (r *Replica) majority() int {
	n := len(r.peers)
	return (n+1)/2 + 1
}

func (r *Replica) lastLogIndexTerm() (int, int) {
	if len(r.log) == 0 {
		return -1, -1
	}
	last := r.log[len(r.log)-1]
	return len(r.log) - 1, last.Term
}

func (r *Replica) resetElectionTimer() {
	span := r.config.ElectionMax - r.config.ElectionMin
	d := r.config.ElectionMin
	if span > 0 {
		d += time.Duration(r.rng.Int63n(int64(span)))
	}
	r.electionDeadline = time.Now().Add(d)
}

func (r *Replica) resetHeartbeatTimer() {
	r.heartbeatDeadline = time.Now().Add(r.config.HeartbeatInterval)
}

// becomeFollower adopts term, records leader as the best-known
// leader, and demotes to Follower. If the replica was Leader, any
// puts still awaiting commit are silently dropped — the client will
// retry against whoever it discovers next.
func (r *Replica) becomeFollower(term int, leader string) {
	wasLeader := r.role == RoleLeader
	r.currentTerm = term
	r.role = RoleFollower
	r.leaderID = leader
	if wasLeader {
		r.pendingPuts = make(map[int]pendingPut)
	}
	r.resetElectionTimer()
}

func (r *Replica) send(dst string, msg wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		r.logger.Error("encode message", zap.Error(err))
		return
	}
	if err := r.endpoint.Send(dst, frame); err != nil {
		r.logger.Debug("send failed", zap.String("dst", dst), zap.Error(err))
	}
}

// reply addresses a response back to the sender of req, filling in
// the common envelope fields and echoing its MID.
func (r *Replica) reply(req wire.Message, resp wire.Message) {
	resp.Src = r.id
	resp.Dst = req.Src
	resp.Leader = r.leaderID
	resp.Term = r.currentTerm
	resp.MID = req.MID
	r.send(req.Src, resp)
}
