package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflux/ledgerraft/internal/wire"
)

func TestClusterElectsExactlyOneLeader(t *testing.T) {
	tc := newTestCluster(3)
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.NotNil(t, leader, "a 3-node cluster should elect a leader")

	term := leader.Status().Term
	for _, r := range tc.replicas {
		if r == leader {
			continue
		}
		require.Equal(t, string(RoleFollower), r.Status().Role)
		require.Equal(t, term, r.Status().Term)
	}
}

func TestClusterPutThenGetRoundTrip(t *testing.T) {
	tc := newTestCluster(3)
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.NotNil(t, leader)

	putResp, ok := tc.clientCall("client1", leader.Status().ID, wire.Message{Type: wire.TypePut, Key: "k", Value: "v", MID: "p1"})
	require.True(t, ok)
	require.Equal(t, wire.TypeOK, putResp.Type)

	getResp, ok := tc.clientCall("client1", leader.Status().ID, wire.Message{Type: wire.TypeGet, Key: "k", MID: "g1"})
	require.True(t, ok)
	require.Equal(t, wire.TypeOK, getResp.Type)
	require.Equal(t, "v", getResp.Value)
}

func TestClusterFollowerRedirectsClientToLeader(t *testing.T) {
	tc := newTestCluster(3)
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.NotNil(t, leader)

	var follower string
	for _, id := range tc.ids {
		if id != leader.Status().ID {
			follower = id
			break
		}
	}

	resp, ok := tc.clientCall("client1", follower, wire.Message{Type: wire.TypeGet, Key: "k", MID: "g1"})
	require.True(t, ok)
	require.Equal(t, wire.TypeRedirect, resp.Type)
	require.Equal(t, leader.Status().ID, resp.Leader)
}

func TestClusterSurvivesMinorityPartitionOfOldLeader(t *testing.T) {
	tc := newTestCluster(3)
	defer tc.stop()

	oldLeader := tc.awaitLeader(2 * time.Second)
	require.NotNil(t, oldLeader)
	oldTerm := oldLeader.Status().Term

	var majority []string
	for _, id := range tc.ids {
		if id != oldLeader.Status().ID {
			majority = append(majority, id)
		}
	}

	tc.hub.Partition([]string{oldLeader.Status().ID}, majority)
	defer tc.hub.Heal()

	deadline := time.Now().Add(3 * time.Second)
	var newLeaderID string
	for time.Now().Before(deadline) {
		for _, r := range tc.replicas {
			st := r.Status()
			if st.ID != oldLeader.Status().ID && st.Role == string(RoleLeader) && st.Term > oldTerm {
				newLeaderID = st.ID
			}
		}
		if newLeaderID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, newLeaderID, "the majority side should elect a new leader with a higher term")

	putResp, ok := tc.clientCall("client2", newLeaderID, wire.Message{Type: wire.TypePut, Key: "k", Value: "v", MID: "p2"})
	require.True(t, ok)
	require.Equal(t, wire.TypeOK, putResp.Type)
}
