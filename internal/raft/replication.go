package raft

import (
	"sort"

	"github.com/arcflux/ledgerraft/internal/wire"
)

// emitAppendRound sends every peer the append_entries its next_index
// calls for: the entry immediately preceding next_index (for the log
// match check) plus everything from next_index onward.
func (r *Replica) emitAppendRound() {
	for _, p := range r.peers {
		next := r.nextIndex[p]
		if next < 0 {
			next = 0
		}

		lastIndex := next - 1
		lastTerm := -1
		if lastIndex >= 0 && lastIndex < len(r.log) {
			lastTerm = r.log[lastIndex].Term
		}

		var entries []wire.Entry
		if next <= len(r.log) {
			entries = append([]wire.Entry{}, r.log[next:]...)
		}

		r.send(p, wire.Message{
			Src: r.id, Dst: p, Leader: r.id, Term: r.currentTerm,
			Type:      wire.TypeAppendEntries,
			Committed: r.committedIndex,
			NextIndex: next,
			LastIndex: lastIndex,
			LastTerm:  lastTerm,
			Entries:   entries,
		})
	}
}

// handleAppendEntries is shared by all three roles: a Follower
// processes it directly; a Candidate or Leader seeing a term at least
// as current from a real sender steps down to Follower first.
func (r *Replica) handleAppendEntries(msg wire.Message) {
	if msg.Term < r.currentTerm {
		r.send(msg.Src, wire.Message{
			Src: r.id, Dst: msg.Src, Leader: r.leaderID, Term: r.currentTerm,
			Type: wire.TypeFail,
		})
		return
	}

	if r.role != RoleFollower {
		r.becomeFollower(msg.Term, msg.Src)
	} else {
		r.currentTerm = msg.Term
		r.leaderID = msg.Src
	}
	r.resetElectionTimer()

	// Entries already known to be committed are applied regardless of
	// whether this round's match check below succeeds.
	r.applyCommitted(msg.Committed)

	if msg.NextIndex == 0 {
		r.log = append([]wire.Entry{}, msg.Entries...)
		r.send(msg.Src, wire.Message{
			Src: r.id, Dst: msg.Src, Leader: r.leaderID, Term: r.currentTerm,
			Type: wire.TypeOK, NextIndex: len(r.log),
		})
		return
	}

	if msg.LastIndex >= len(r.log) || r.log[msg.LastIndex].Term != msg.LastTerm {
		r.send(msg.Src, wire.Message{
			Src: r.id, Dst: msg.Src, Leader: r.leaderID, Term: r.currentTerm,
			Type: wire.TypeFail,
		})
		return
	}

	r.log = append(r.log[:msg.LastIndex+1], msg.Entries...)
	r.send(msg.Src, wire.Message{
		Src: r.id, Dst: msg.Src, Leader: r.leaderID, Term: r.currentTerm,
		Type: wire.TypeOK, NextIndex: len(r.log),
	})
}

// handleAppendOK advances the peer's next_index and re-checks whether
// a new prefix of the log has reached a majority.
func (r *Replica) handleAppendOK(msg wire.Message) {
	r.nextIndex[msg.Src] = msg.NextIndex
	r.advanceCommit()
}

// handleAppendFail backs off the peer's next_index by one so the next
// round offers an earlier log-match point.
func (r *Replica) handleAppendFail(msg wire.Message) {
	if r.nextIndex[msg.Src] > 0 {
		r.nextIndex[msg.Src]--
	}
}

// advanceCommit recomputes committed_index from the peers'
// next_index values. The leader itself always has the full log, so
// of the `majority` total nodes needed to agree, only majority-1 need
// be peers. Sorting peer next_index values in decreasing order, the
// value at 0-indexed position (majority-2) is held by at least
// majority-1 peers, so committed_index can advance to one less than
// it.
//
// We additionally require the candidate index to have been appended
// in the current term before committing it: committing a stale-term
// entry purely on replication count can be undone by a later leader
// that never saw it, which the per-peer next_index bookkeeping alone
// doesn't rule out.
func (r *Replica) advanceCommit() {
	if r.role != RoleLeader {
		return
	}

	var candidate int
	if len(r.peers) == 0 {
		candidate = len(r.log) - 1
	} else {
		values := make([]int, 0, len(r.peers))
		for _, p := range r.peers {
			values = append(values, r.nextIndex[p])
		}
		sort.Sort(sort.Reverse(sort.IntSlice(values)))

		pos := r.majority() - 2
		if pos < 0 || pos >= len(values) {
			return
		}
		candidate = values[pos] - 1
	}

	if candidate < 0 || candidate <= r.committedIndex {
		return
	}
	if candidate >= len(r.log) {
		candidate = len(r.log) - 1
	}
	if candidate <= r.committedIndex || r.log[candidate].Term != r.currentTerm {
		return
	}

	r.applyCommitted(candidate)
	r.resolvePendingPuts()
}

// applyCommitted replays log[committedIndex+1 .. min(committed, len(log)-1)]
// into the store and advances committedIndex. It is used both by a
// Follower accepting a leader's committed watermark and by a Leader
// advancing its own.
func (r *Replica) applyCommitted(committed int) {
	if committed <= r.committedIndex {
		return
	}
	upper := committed
	if upper > len(r.log)-1 {
		upper = len(r.log) - 1
	}
	for i := r.committedIndex + 1; i <= upper; i++ {
		r.store.Apply(r.log[i])
	}
	if upper > r.committedIndex {
		r.committedIndex = upper
	}
}
