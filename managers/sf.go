// vi: sw=4 ts=4:

/*

	Mnemonic:	sf
	Abstract:	Scheduling Function (spec §4.9): decides when dedicated
					cells are added, removed or relocated. MSF watches cell
					usage and negotiates over 6P; SFNone never touches the
					schedule beyond the minimal cell TSCH already installs.

					Grounded on managers/res_mgr.go's reservation-inventory
					housekeeping: res_mgr periodically walked its book of
					granted reservations and released what had gone idle;
					MSF periodically walks its per-peer cell usage the same
					way and negotiates the delta over 6P instead of just
					freeing locally.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		sf_class selects MSF vs SFNone.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

const (
	HousekeepingPeriod   = 1000 // slots
	LimNumCellsUsedHigh  = 0.75
	LimNumCellsUsedLow   = 0.25
	NumCellsToAddRemove  = 1
	MaxNumCells          = 8

	// DegradingPdrThreshold separates a cell that is merely idle (PDR estimate
	// defaults to 1.0 when it has never carried a transmission) from one that
	// is actually degrading (observed NACKs pull its estimate below this).
	DegradingPdrThreshold = 0.5
)

// SF is the interface TSCH and RPL notify; both MSF and SFNone satisfy it.
type SF interface {
	Boot()
	Indication_neighbor_added(peer gizmos.Mac)
	Indication_dedicated_tx_cell_elapsed(owner *Mote, cell *gizmos.Cell, used bool)
	Detect_schedule_inconsistency(peer gizmos.Mac)
	Schedule_parent_change(oldParent, newParent gizmos.Mac)
}

// --- SFNone -----------------------------------------------------------

// SFNone installs nothing beyond the minimal cell TSCH already owns at boot.
type SFNone struct{}

func Mk_sf_none() *SFNone { return &SFNone{} }

func (s *SFNone) Boot()                                                               {}
func (s *SFNone) Indication_neighbor_added(peer gizmos.Mac)                            {}
func (s *SFNone) Indication_dedicated_tx_cell_elapsed(owner *Mote, cell *gizmos.Cell, used bool) {}
func (s *SFNone) Detect_schedule_inconsistency(peer gizmos.Mac)                        {}
func (s *SFNone) Schedule_parent_change(oldParent, newParent gizmos.Mac)               {}

// --- MSF ----------------------------------------------------------------

type cellUsage struct {
	used      int
	allocated int
}

/*
	MSF maintains one autonomous shared cell per neighbour plus whatever
	dedicated cells 6P has negotiated, re-evaluating every
	HousekeepingPeriod slots.
*/
type MSF struct {
	owner *Mote
	world *World

	autonomous map[gizmos.Mac]bool
	usage      map[gizmos.Mac]*cellUsage
}

func Mk_msf(owner *Mote, world *World) *MSF {
	return &MSF{owner: owner, world: world, autonomous: make(map[gizmos.Mac]bool), usage: make(map[gizmos.Mac]*cellUsage)}
}

func (m *MSF) Boot() {
	m.world.Engine.Schedule_at_asn(m.world.Engine.Now()+HousekeepingPeriod, OrderStackTask, m.tag(), m.housekeeping)
}

func (m *MSF) tag() string { return "msf:" + m.owner.Mac.String() }

/*
	Indication_neighbor_added installs one autonomous {TX,RX,SHARED} cell
	toward peer, placed by hashing the two MACs into a slot offset distinct
	from 0 (reserved for the minimal cell), linear-probing past collisions.
*/
func (m *MSF) Indication_neighbor_added(peer gizmos.Mac) {
	if m.autonomous[peer] {
		return
	}
	length := m.world.Settings.TschSlotframeLength
	sched := m.owner.Tsch.schedule
	slot := 1 + int(hashMacs(m.owner.Mac, peer)%uint64(length-1))
	for i := 0; i < length; i++ {
		candidate := 1 + (slot+i-1)%(length-1)
		if _, has := sched.At(candidate); !has {
			sched.Add(gizmos.Mk_cell(candidate, 0, gizmos.OptTx|gizmos.OptRx|gizmos.OptShared, peer))
			m.autonomous[peer] = true
			return
		}
	}
}

func hashMacs(a, b gizmos.Mac) uint64 {
	var h uint64 = 14695981039346656037
	for _, by := range a {
		h = (h ^ uint64(by)) * 1099511628211
	}
	for _, by := range b {
		h = (h ^ uint64(by)) * 1099511628211
	}
	return h
}

func (m *MSF) dedicatedCellsFor(peer gizmos.Mac) []*gizmos.Cell {
	var out []*gizmos.Cell
	for _, c := range m.owner.Tsch.schedule.All() {
		if c.Neighbour == peer && !c.Options.Has(gizmos.OptShared) {
			out = append(out, c)
		}
	}
	return out
}

func (m *MSF) Indication_dedicated_tx_cell_elapsed(owner *Mote, cell *gizmos.Cell, used bool) {
	if cell.Options.Has(gizmos.OptShared) {
		return
	}
	u, ok := m.usage[cell.Neighbour]
	if !ok {
		u = &cellUsage{}
		m.usage[cell.Neighbour] = u
	}
	u.allocated++
	if used {
		u.used++
	}
}

/*
	housekeeping implements the add/remove decision of spec §4.9 every
	HousekeepingPeriod slots, then resets the window.
*/
func (m *MSF) housekeeping(uint64) {
	for peer, u := range m.usage {
		if u.allocated == 0 {
			continue
		}
		ratio := float64(u.used) / float64(u.allocated)
		dedicated := m.dedicatedCellsFor(peer)

		switch {
		case ratio > LimNumCellsUsedHigh && len(dedicated) < MaxNumCells:
			m.requestAdd(peer)
		case ratio < LimNumCellsUsedLow && len(dedicated) > 0:
			m.requestRemove(peer, dedicated)
		}
		u.used, u.allocated = 0, 0
	}
	m.world.Engine.Schedule_at_asn(m.world.Engine.Now()+HousekeepingPeriod, OrderStackTask, m.tag(), m.housekeeping)
}

func (m *MSF) requestAdd(peer gizmos.Mac) {
	candidates := m.freeSlotCandidates(peer, NumCellsToAddRemove*4)
	if len(candidates) == 0 {
		return
	}
	m.owner.Sixp.RequestAdd(peer, candidates, NumCellsToAddRemove, func(rc SixpReturnCode, granted []gizmos.CellLocator) {})
}

/*
	requestRemove picks the worst-PDR dedicated cell toward peer as the
	removal target (spec §4.9: "worst-PDR cell is the relocation target").
	A cell that is actually degrading (observed NACKs, PDR estimate below
	DegradingPdrThreshold) is moved to a fresh slot via RequestRelocate
	rather than deleted outright; a cell that is simply unused (no
	transmissions ever attempted, so its PDR estimate is still the default
	1.0) is reclaimed with RequestDelete instead.
*/
func (m *MSF) requestRemove(peer gizmos.Mac, dedicated []*gizmos.Cell) {
	worst := dedicated[0]
	for _, c := range dedicated[1:] {
		if c.Pdr_estimate() < worst.Pdr_estimate() {
			worst = c
		}
	}

	if worst.Pdr_estimate() < DegradingPdrThreshold {
		candidates := m.freeSlotCandidates(peer, NumCellsToAddRemove*4)
		if len(candidates) == 0 {
			return
		}
		m.owner.Sixp.RequestRelocate(peer, []gizmos.CellLocator{worst.Locator()}, candidates, func(rc SixpReturnCode, granted []gizmos.CellLocator) {})
		return
	}

	m.owner.Sixp.RequestDelete(peer, []gizmos.CellLocator{worst.Locator()}, NumCellsToAddRemove, func(rc SixpReturnCode, granted []gizmos.CellLocator) {})
}

func (m *MSF) freeSlotCandidates(peer gizmos.Mac, n int) []gizmos.CellLocator {
	length := m.world.Settings.TschSlotframeLength
	var out []gizmos.CellLocator
	start := int(hashMacs(m.owner.Mac, peer) % uint64(length))
	for i := 0; i < length && len(out) < n; i++ {
		slot := (start + i) % length
		if slot == 0 {
			continue
		}
		if _, has := m.owner.Tsch.schedule.At(slot); !has {
			out = append(out, gizmos.CellLocator{SlotOffset: slot, ChannelOffset: 0})
		}
	}
	return out
}

/*
	Detect_schedule_inconsistency clears the peer relationship over 6P
	(spec §4.8/4.9: ERR_SEQNUM triggers CLEAR-based recovery), then drops
	the locally cached dedicated cells once the clear completes.
*/
func (m *MSF) Detect_schedule_inconsistency(peer gizmos.Mac) {
	m.owner.Sixp.RequestClear(peer, func(rc SixpReturnCode, granted []gizmos.CellLocator) {
		if rc != SixpSuccess {
			return
		}
		for _, c := range m.dedicatedCellsFor(peer) {
			m.owner.Tsch.schedule.Remove(c.SlotOffset)
		}
		delete(m.usage, peer)
	})
}

// Schedule_parent_change installs the autonomous cell toward the new parent (as
// Indication_neighbor_added does); it does not run housekeeping.
func (m *MSF) Schedule_parent_change(oldParent, newParent gizmos.Mac) {
	if newParent != (gizmos.Mac{}) {
		m.Indication_neighbor_added(newParent)
	}
}
