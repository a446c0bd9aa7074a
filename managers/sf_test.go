package managers

import (
	"testing"

	"github.com/att/sixtisch-sim/gizmos"
)

func TestMSF_Indication_neighbor_added_installs_one_autonomous_cell(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	msf := Mk_msf(mote, w)
	peer := gizmos.Mk_mac(5)

	msf.Indication_neighbor_added(peer)

	found := 0
	for _, c := range mote.Tsch.schedule.All() {
		if c.Neighbour == peer {
			found++
			if !c.Options.Has(gizmos.OptShared) {
				t.Fatalf("expected the autonomous cell to be SHARED")
			}
			if c.SlotOffset == 0 {
				t.Fatalf("slot 0 is reserved for the minimal cell")
			}
		}
	}
	if found != 1 {
		t.Fatalf("expected exactly one autonomous cell toward the peer, found %d", found)
	}

	// a second call must be a no-op: only one autonomous cell per peer
	msf.Indication_neighbor_added(peer)
	found = 0
	for _, c := range mote.Tsch.schedule.All() {
		if c.Neighbour == peer {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected Indication_neighbor_added to be idempotent, found %d cells", found)
	}
}

func TestMSF_housekeeping_adds_cell_above_high_watermark(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	msf := Mk_msf(mote, w)
	peer := gizmos.Mk_mac(5)
	mote.Tsch.sf = msf

	mote.Tsch.schedule.Add(gizmos.Mk_cell(1, 0, gizmos.OptTx|gizmos.OptRx, peer))
	msf.usage[peer] = &cellUsage{used: 9, allocated: 10} // 0.9 > LimNumCellsUsedHigh

	msf.housekeeping(0)

	if _, busy := mote.Sixp.txn[peer]; !busy {
		t.Fatalf("expected housekeeping to open a 6P ADD transaction toward the overloaded peer")
	}
}

func TestMSF_housekeeping_relocates_degrading_cell_below_low_watermark(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	msf := Mk_msf(mote, w)
	peer := gizmos.Mk_mac(5)
	mote.Tsch.sf = msf

	good := gizmos.Mk_cell(1, 0, gizmos.OptTx|gizmos.OptRx, peer)
	bad := gizmos.Mk_cell(2, 0, gizmos.OptTx|gizmos.OptRx, peer)
	good.Note_tx(true)
	bad.Note_tx(false) // Pdr_estimate() == 0.0 < DegradingPdrThreshold: actually degrading
	mote.Tsch.schedule.Add(good)
	mote.Tsch.schedule.Add(bad)
	msf.usage[peer] = &cellUsage{used: 1, allocated: 10} // 0.1 < LimNumCellsUsedLow

	msf.housekeeping(0)

	txn, busy := mote.Sixp.txn[peer]
	if !busy {
		t.Fatalf("expected housekeeping to open a 6P RELOCATE transaction toward the degrading peer")
	}
	if txn.command != SixpRelocate {
		t.Fatalf("expected a RELOCATE command, got %v", txn.command)
	}
	if len(txn.cellList) != 1 || txn.cellList[0].SlotOffset != bad.SlotOffset {
		t.Fatalf("expected the worst-PDR cell (slot %d) to be targeted, got %v", bad.SlotOffset, txn.cellList)
	}
}

func TestMSF_housekeeping_deletes_unused_cell_below_low_watermark(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	msf := Mk_msf(mote, w)
	peer := gizmos.Mk_mac(5)
	mote.Tsch.sf = msf

	// The cell has never carried a transmission, so it sits at the
	// default Pdr_estimate() of 1.0: "unused", not "degrading".
	idle := gizmos.Mk_cell(1, 0, gizmos.OptTx|gizmos.OptRx, peer)
	mote.Tsch.schedule.Add(idle)
	msf.usage[peer] = &cellUsage{used: 1, allocated: 10} // 0.1 < LimNumCellsUsedLow

	msf.housekeeping(0)

	txn, busy := mote.Sixp.txn[peer]
	if !busy {
		t.Fatalf("expected housekeeping to open a 6P DELETE transaction toward the under-used peer")
	}
	if txn.command != SixpDelete {
		t.Fatalf("expected a DELETE command for an unused cell, got %v", txn.command)
	}
	if len(txn.cellList) != 1 || txn.cellList[0].SlotOffset != idle.SlotOffset {
		t.Fatalf("expected the idle cell (slot %d) to be targeted, got %v", idle.SlotOffset, txn.cellList)
	}
}

func TestMSF_Detect_schedule_inconsistency_clears_on_success(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	msf := Mk_msf(mote, w)
	peer := gizmos.Mk_mac(5)
	mote.Tsch.sf = msf
	mote.Tsch.schedule.Add(gizmos.Mk_cell(3, 0, gizmos.OptTx|gizmos.OptRx, peer))
	msf.usage[peer] = &cellUsage{used: 1, allocated: 1}

	msf.Detect_schedule_inconsistency(peer)

	txn, busy := mote.Sixp.txn[peer]
	if !busy || txn.command != SixpClear {
		t.Fatalf("expected a CLEAR transaction to be opened toward the inconsistent peer")
	}

	// simulate the CLEAR completing successfully, as receiveResponse/receiveConfirmation would
	txn.callback(SixpSuccess, nil)

	if _, stillHas := mote.Tsch.schedule.At(3); stillHas {
		t.Fatalf("expected the dedicated cell to be dropped once the CLEAR completes")
	}
	if _, tracked := msf.usage[peer]; tracked {
		t.Fatalf("expected usage bookkeeping for the peer to be forgotten")
	}
}

func TestSFNone_never_touches_schedule(t *testing.T) {
	w := newTestWorld(2)
	mote := w.Motes[0]
	sf := Mk_sf_none()
	before := mote.Tsch.schedule.Len()

	sf.Indication_neighbor_added(gizmos.Mk_mac(1))
	sf.Schedule_parent_change(gizmos.Mac{}, gizmos.Mk_mac(2))
	sf.Detect_schedule_inconsistency(gizmos.Mk_mac(1))

	if mote.Tsch.schedule.Len() != before {
		t.Fatalf("expected SFNone to never modify the schedule")
	}
}
