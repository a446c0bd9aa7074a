package managers

import (
	"testing"

	"github.com/att/sixtisch-sim/gizmos"
)

func newTestWorldWithSecjoin(numMotes int, enabled bool) *World {
	settings := Default()
	settings.ExecNumMotes = numMotes
	settings.SecjoinEnabled = enabled
	return Mk_world(settings, discardWriter{})
}

func TestSecjoin_Start_joins_immediately_when_disabled(t *testing.T) {
	w := newTestWorldWithSecjoin(2, false)
	mote := w.Motes[1]

	mote.Secjoin.Start()

	if !mote.Secjoin.IsJoined() {
		t.Fatalf("expected a pledge to join immediately when secjoin is disabled")
	}
}

func TestSecjoin_root_is_always_joined(t *testing.T) {
	w := newTestWorldWithSecjoin(2, true)
	if !w.Motes[0].Secjoin.IsJoined() {
		t.Fatalf("root should report joined without ever calling Start")
	}
	w.Motes[0].Secjoin.Start()
	if !w.Motes[0].Secjoin.IsJoined() {
		t.Fatalf("expected Start on the root to be a no-op that leaves it joined")
	}
}

func TestSecjoin_Receive_join_response_matches_pledge_id(t *testing.T) {
	w := newTestWorldWithSecjoin(2, true)
	mote := w.Motes[1]
	mote.Secjoin.Start()

	wrongId := gizmos.Mk_packet(gizmos.PTypeJoinResponse, gizmos.NetHeader{})
	wrongId.App.PledgeId = 999
	mote.Secjoin.Receive(wrongId)
	if mote.Secjoin.IsJoined() {
		t.Fatalf("a response for a different pledge id must not complete the join")
	}

	resp := gizmos.Mk_packet(gizmos.PTypeJoinResponse, gizmos.NetHeader{})
	resp.App.PledgeId = mote.ID
	mote.Secjoin.Receive(resp)
	if !mote.Secjoin.IsJoined() {
		t.Fatalf("expected a matching PledgeId to complete the join")
	}
}

func TestSecjoin_gives_up_after_max_retransmit(t *testing.T) {
	w := newTestWorldWithSecjoin(2, true)
	mote := w.Motes[1]
	mote.Tsch.isSync = true
	mote.Secjoin.Start()

	for i := 0; i < SecjoinMaxRetransmit+1; i++ {
		mote.Secjoin.onTimeout()
	}

	if mote.Tsch.IsSynced() {
		t.Fatalf("expected the pledge to desynchronise after exhausting its retransmit budget")
	}
}

func TestSecjoin_root_answers_join_request_with_source_route(t *testing.T) {
	w := newTestWorldWithSecjoin(3, true)
	root := w.Motes[0]
	root.Rpl.ReceiveDao(func() *gizmos.Packet {
		p := gizmos.Mk_packet(gizmos.PTypeDao, gizmos.NetHeader{})
		p.App.ChildId = 1
		p.App.ParentId = 0
		return p
	}())

	req := gizmos.Mk_packet(gizmos.PTypeJoinRequest, gizmos.NetHeader{SrcIp: w.Motes[1].LinkLocal})
	req.App.PledgeId = 1
	req.App.ChildId = 1

	root.Secjoin.Receive(req) // must not panic for a mote with a known route
}
