package raft

import (
	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/wire"
)

// startElection bumps the term, votes for self, and broadcasts
// request_vote to every peer. A replica with no peers is its own
// majority and becomes Leader immediately.
func (r *Replica) startElection() {
	r.currentTerm++
	r.role = RoleCandidate
	r.leaderID = wire.Broadcast
	r.votedFor[r.currentTerm] = r.id
	r.votesReceived = 1
	r.resetElectionTimer()

	lastIdx, lastTerm := r.lastLogIndexTerm()
	for _, p := range r.peers {
		r.send(p, wire.Message{
			Src: r.id, Dst: p, Leader: r.leaderID, Term: r.currentTerm,
			Type:          wire.TypeRequestVote,
			LastLogIndex:  lastIdx,
			LastLogTerm:   lastTerm,
		})
	}

	r.logger.Info("starting election", zap.Int("term", r.currentTerm))
	r.metrics.RecordElectionStarted()

	if r.votesReceived >= r.majority() {
		r.becomeLeader()
	}
}

// handleRequestVote grants a vote when: the requesting term is no
// older than ours, we haven't already voted this term, and the
// candidate's log is at least as up to date as ours (the election
// restriction — see the Open Question resolution in DESIGN.md).
func (r *Replica) handleRequestVote(msg wire.Message) {
	if msg.Term > r.currentTerm {
		r.becomeFollower(msg.Term, wire.Broadcast)
	}
	if msg.Term < r.currentTerm {
		return
	}
	if _, voted := r.votedFor[msg.Term]; voted {
		return
	}

	lastIdx, lastTerm := r.lastLogIndexTerm()
	if msg.LastLogTerm < lastTerm || (msg.LastLogTerm == lastTerm && msg.LastLogIndex < lastIdx) {
		return
	}

	r.votedFor[msg.Term] = msg.Src
	r.resetElectionTimer()
	r.send(msg.Src, wire.Message{
		Src: r.id, Dst: msg.Src, Leader: r.leaderID, Term: r.currentTerm,
		Type: wire.TypeVote, Vote: msg.Src,
	})
}

// handleVote tallies an incoming vote. Stale votes (wrong term, or a
// vote we're no longer a candidate for) are dropped.
func (r *Replica) handleVote(msg wire.Message) {
	if r.role != RoleCandidate {
		return
	}
	if msg.Term > r.currentTerm {
		r.becomeFollower(msg.Term, wire.Broadcast)
		return
	}
	if msg.Term != r.currentTerm || msg.Vote != r.id {
		return
	}

	r.votesReceived++
	if r.votesReceived >= r.majority() {
		r.becomeLeader()
	}
}

// becomeLeader initializes per-peer replication state and fires an
// immediate append round, which doubles as the first heartbeat.
func (r *Replica) becomeLeader() {
	r.role = RoleLeader
	r.leaderID = r.id
	r.pendingPuts = make(map[int]pendingPut)
	for _, p := range r.peers {
		r.nextIndex[p] = len(r.log)
	}
	r.resetHeartbeatTimer()
	r.logger.Info("became leader", zap.Int("term", r.currentTerm))
	r.metrics.RecordLeaderChange()
	r.emitAppendRound()
	r.advanceCommit()
}
