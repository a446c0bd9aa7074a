package managers

import (
	"testing"

	"github.com/att/sixtisch-sim/gizmos"
)

type fakeSF struct {
	inconsistencyPeer gizmos.Mac
	detected          bool
}

func (f *fakeSF) Boot()                                                      {}
func (f *fakeSF) Indication_neighbor_added(peer gizmos.Mac)                  {}
func (f *fakeSF) Indication_dedicated_tx_cell_elapsed(*Mote, *gizmos.Cell, bool) {}
func (f *fakeSF) Detect_schedule_inconsistency(peer gizmos.Mac) {
	f.detected = true
	f.inconsistencyPeer = peer
}
func (f *fakeSF) Schedule_parent_change(oldParent, newParent gizmos.Mac) {}

func sixpRequestFrame(from, to gizmos.Mac, cmd SixpCommand, seq byte, cellList []gizmos.CellLocator, numCells int) *gizmos.Packet {
	p := gizmos.Mk_packet(gizmos.PTypeSixp, gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(from), DstIp: gizmos.Mk_link_local(to), HopLimit: 1})
	p.App.Sixp = gizmos.SixpApp{Frame: gizmos.SixpRequest, Command: int(cmd), SeqNum: seq, CellList: cellList, NumCells: numCells}
	p.Attach_mac(gizmos.MacHeader{SrcMac: from, DstMac: to})
	return p
}

func TestSixp_receiveRequest_add_grants_candidate_and_advances_seqnum(t *testing.T) {
	w := newTestWorld(3)
	responder := w.Motes[1]
	initiatorMac := gizmos.Mk_mac(50)

	candidates := []gizmos.CellLocator{{SlotOffset: 3, ChannelOffset: 0}}
	req := sixpRequestFrame(initiatorMac, responder.Mac, SixpAdd, 0, candidates, 1)

	responder.Sixp.Receive(req)

	if _, ok := responder.Tsch.schedule.At(3); !ok {
		t.Fatalf("expected the responder to grant and install the offered cell")
	}
	if got := responder.Sixp.seqNumByPeer[initiatorMac]; got != 1 {
		t.Fatalf("expected SeqNum to advance to 1 after a completed 2-step exchange, got %d", got)
	}
}

func TestSixp_receiveRequest_seqnum_mismatch_triggers_inconsistency(t *testing.T) {
	w := newTestWorld(3)
	responder := w.Motes[1]
	fake := &fakeSF{}
	responder.Tsch.sf = fake
	initiatorMac := gizmos.Mk_mac(50)

	req := sixpRequestFrame(initiatorMac, responder.Mac, SixpAdd, 7, nil, 1)
	responder.Sixp.Receive(req)

	if !fake.detected {
		t.Fatalf("expected an out-of-order SeqNum to trigger schedule-inconsistency detection")
	}
	if fake.inconsistencyPeer != initiatorMac {
		t.Fatalf("expected the inconsistency to be reported against the initiator, got %v", fake.inconsistencyPeer)
	}
}

func TestSixp_completeSeq_wraps_0xFF_to_1(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	peer := gizmos.Mk_mac(1)
	mote.Sixp.seqNumByPeer[peer] = 0xFF

	mote.Sixp.completeSeq(peer)

	if got := mote.Sixp.seqNumByPeer[peer]; got != 1 {
		t.Fatalf("expected wraparound 0xFF -> 1 (0 reserved), got %d", got)
	}
}

func TestSixp_request_rejects_when_peer_busy(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	peer := gizmos.Mk_mac(1)
	mote.Sixp.txn[peer] = &transaction{peer: peer, initiator: true}

	var gotRc SixpReturnCode
	called := false
	mote.Sixp.RequestAdd(peer, []gizmos.CellLocator{{SlotOffset: 2}}, 1, func(rc SixpReturnCode, granted []gizmos.CellLocator) {
		called = true
		gotRc = rc
	})

	if !called {
		t.Fatalf("expected the callback to fire synchronously on a busy peer")
	}
	if gotRc != SixpErrBusy {
		t.Fatalf("expected ERR_BUSY, got %v", gotRc)
	}
}

func TestSixp_receiveRequest_clear_resets_seqnum_and_schedule(t *testing.T) {
	w := newTestWorld(3)
	responder := w.Motes[1]
	initiatorMac := gizmos.Mk_mac(50)
	responder.Sixp.seqNumByPeer[initiatorMac] = 9
	responder.Tsch.schedule.Add(gizmos.Mk_cell(4, 0, gizmos.OptTx|gizmos.OptRx, initiatorMac))

	req := sixpRequestFrame(initiatorMac, responder.Mac, SixpClear, 0, nil, 0)
	responder.Sixp.Receive(req)

	if got := responder.Sixp.seqNumByPeer[initiatorMac]; got != 0 {
		t.Fatalf("expected CLEAR to reset SeqNum to 0, got %d", got)
	}
	if _, ok := responder.Tsch.schedule.At(4); ok {
		t.Fatalf("expected CLEAR to remove every cell held with that peer")
	}
}
