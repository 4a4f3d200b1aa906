package raft

import (
	"time"

	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/metrics"
	"github.com/arcflux/ledgerraft/internal/wire"
)

// handleClientRequest implements get/put at whichever role currently
// holds it. A Candidate has no one to redirect to yet and no log it
// can safely append onto, so requests are silently dropped — the
// client's own timeout drives a retry. A Follower redirects to its
// best-known leader. A Leader serves get immediately and queues put
// until it commits.
func (r *Replica) handleClientRequest(msg wire.Message) {
	start := time.Now()

	switch r.role {
	case RoleCandidate:
		return
	case RoleFollower:
		r.reply(msg, wire.Message{Type: wire.TypeRedirect, Leader: r.leaderID})
		return
	}

	switch msg.Type {
	case wire.TypeGet:
		val, err := r.store.Get(msg.Key)
		if err != nil {
			r.reply(msg, wire.Message{Type: wire.TypeFail})
			r.metrics.RecordFailure(metrics.OpGet)
			return
		}
		r.reply(msg, wire.Message{Type: wire.TypeOK, Value: val})
		r.metrics.RecordSuccess(metrics.OpGet, time.Since(start))

	case wire.TypePut:
		index := len(r.log)
		entry := wire.Entry{Index: index, Term: r.currentTerm, Key: msg.Key, Value: msg.Value}
		r.log = append(r.log, entry)
		r.pendingPuts[index] = pendingPut{src: msg.Src, mid: msg.MID, requestedAt: start}
		r.logger.Debug("queued put", zap.Int("index", index), zap.String("key", msg.Key))

		r.emitAppendRound()
		r.advanceCommit()
	}
}

// resolvePendingPuts replies ok to every queued put whose index has
// now committed, and drops it from the pending set.
func (r *Replica) resolvePendingPuts() {
	for index, pp := range r.pendingPuts {
		if index > r.committedIndex {
			continue
		}
		r.send(pp.src, wire.Message{
			Src: r.id, Dst: pp.src, Leader: r.leaderID, Term: r.currentTerm,
			Type: wire.TypeOK, MID: pp.mid,
		})
		r.metrics.RecordSuccess(metrics.OpPut, time.Since(pp.requestedAt))
		delete(r.pendingPuts, index)
	}
}
