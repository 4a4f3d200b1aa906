package raft

import "github.com/arcflux/ledgerraft/internal/wire"

// The three dispatch tables below are the literal handler-table: for
// each role, which message types are acted on and which are dropped
// on the floor. get/put never reach a Candidate (no one to redirect
// to yet, and no log to append onto safely); vote never reaches a
// Leader (an election it already won); ok/fail are always replies to
// a leader's own append_entries, so only a Leader acts on them.

func (r *Replica) dispatchFollower(msg wire.Message) {
	switch msg.Type {
	case wire.TypeGet, wire.TypePut:
		r.handleClientRequest(msg)
	case wire.TypeRequestVote:
		r.handleRequestVote(msg)
	case wire.TypeAppendEntries:
		r.handleAppendEntries(msg)
	default:
		// vote, ok, fail, redirect: nothing a Follower expects, drop.
	}
}

func (r *Replica) dispatchCandidate(msg wire.Message) {
	switch msg.Type {
	case wire.TypeRequestVote:
		r.handleRequestVote(msg)
	case wire.TypeVote:
		r.handleVote(msg)
	case wire.TypeAppendEntries:
		r.handleAppendEntries(msg)
	default:
		// get, put, ok, fail, redirect: drop. Clients retry on timeout.
	}
}

func (r *Replica) dispatchLeader(msg wire.Message) {
	switch msg.Type {
	case wire.TypeGet, wire.TypePut:
		r.handleClientRequest(msg)
	case wire.TypeRequestVote:
		r.handleRequestVote(msg)
	case wire.TypeAppendEntries:
		r.handleAppendEntries(msg)
	case wire.TypeOK:
		r.handleAppendOK(msg)
	case wire.TypeFail:
		r.handleAppendFail(msg)
	default:
		// vote, redirect: drop.
	}
}
