// vi: sw=4 ts=4:

/*

	Mnemonic:	rpl
	Abstract:	RPL: rank computation, parent selection, DIO/DAO, and
				source-route assembly at the root (spec §4.6). Parent-set
				maintenance here plays the same role gizmos/switch.go's
				Dijkstra cost/Prev bookkeeping played for the teacher - "who
				is my cheapest way toward the root" - but recomputed
				incrementally on every DIO rather than from a full graph
				rebuild; source-route reconstruction at the root reuses
				gizmos/route.go's ParentTree, the generalised form of
				switch.go's path backtrack.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		rpl_daoPeriod, tsch_probBcast_dioProb.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

const (
	MinHopRankIncrease   = 256
	MaxRankIncrease       = 3 * MinHopRankIncrease
	ParentSwitchThreshold = MinHopRankIncrease / 2
	NumSufficientTx       = 10
	RootRank              = 256
	MaxParentSetSize      = 3
)

type Rpl struct {
	owner *Mote
	world *World

	rank            uint16
	preferredParent gizmos.Mac
	parentSet       []gizmos.Mac
	neighborRank    map[gizmos.Mac]uint16

	tree *gizmos.ParentTree // only populated/used at the root
}

func Mk_rpl(owner *Mote, world *World) *Rpl {
	r := &Rpl{owner: owner, world: world, neighborRank: make(map[gizmos.Mac]uint16)}
	if owner.ID == 0 {
		r.rank = RootRank
		r.tree = gizmos.Mk_parent_tree()
	}
	return r
}

func (r *Rpl) Rank() uint16               { return r.rank }
func (r *Rpl) DagRank() int                { return int(r.rank) / MinHopRankIncrease }
func (r *Rpl) PreferredParent() gizmos.Mac { return r.preferredParent }
func (r *Rpl) NumNeighbors() int           { return len(r.neighborRank) }

func (r *Rpl) Boot() {
	if r.owner.ID != 0 {
		r.world.Engine.Schedule_at_asn(r.world.Engine.Now()+1, OrderStackTask, "rpl-dao:"+r.owner.Mac.String(), r.maybeSendDao)
	}
}

// ResetTrickle is called after a detected routing loop (spec §4.5). It does nothing:
// DIOs go out probabilistically on shared slots (see Tsch.runSharedAnySlot) and no
// trickle timer or suppression state is kept to restart.
func (r *Rpl) ResetTrickle() {}

func (r *Rpl) etx(neighbourID int) float64 {
	mac := r.world.Motes[neighbourID].Mac
	if cell := r.owner.Tsch.cellFor(mac); cell != nil && cell.NumTx >= NumSufficientTx {
		if cell.NumTxAck == 0 {
			return 16
		}
		return float64(cell.NumTx) / float64(cell.NumTxAck)
	}
	pdr := r.world.Topology.GetPdr(r.owner.ID, neighbourID, 0)
	if pdr <= 0 {
		return 16
	}
	return 1 / pdr
}

func (r *Rpl) rankIncrease(neighbourID int) float64 {
	return (3*r.etx(neighbourID) - 2) * MinHopRankIncrease
}

/*
	recomputeParent reselects the preferred parent and parent set from
	neighborRank (spec §4.6): candidate rank = neighborRank[n] +
	rankIncrease(n); switch only if the improvement beats
	ParentSwitchThreshold, to avoid churn.
*/
func (r *Rpl) recomputeParent() {
	type cand struct {
		mac  gizmos.Mac
		rank float64
	}
	var cands []cand
	for mac, nrank := range r.neighborRank {
		nid, ok := r.world.moteIDForMac(mac)
		if !ok {
			continue
		}
		inc := r.rankIncrease(nid)
		if inc > MaxRankIncrease {
			continue
		}
		cands = append(cands, cand{mac: mac, rank: float64(nrank) + inc})
	}
	if len(cands) == 0 {
		return
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.rank < best.rank {
			best = c
		}
	}

	oldRank := float64(r.rank)
	if r.preferredParent == (gizmos.Mac{}) || oldRank-best.rank > ParentSwitchThreshold {
		if r.preferredParent != best.mac {
			oldParent := r.preferredParent
			r.world.Log.Emit(r.world.Engine.Now(), EvRplChurn, map[string]any{"mote_id": r.owner.ID, "new_parent": best.mac.String()})
			if r.owner.Tsch.sf != nil {
				r.owner.Tsch.sf.Schedule_parent_change(oldParent, best.mac)
			}
		}
		r.preferredParent = best.mac
		r.rank = uint16(best.rank)
	}

	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			if cands[j].rank < cands[i].rank {
				cands[i], cands[j] = cands[j], cands[i]
			}
		}
	}
	n := MaxParentSetSize
	if len(cands) < n {
		n = len(cands)
	}
	r.parentSet = r.parentSet[:0]
	for i := 0; i < n; i++ {
		if cands[i].rank < float64(r.rank)+MaxRankIncrease {
			r.parentSet = append(r.parentSet, cands[i].mac)
		}
	}
}

func (r *Rpl) BuildDio() *gizmos.Packet {
	p := gizmos.Mk_packet(gizmos.PTypeDio, gizmos.NetHeader{SrcIp: r.owner.LinkLocal, DstIp: gizmos.BroadcastIp, HopLimit: 1})
	p.App.Rank = r.rank
	p.Attach_mac(gizmos.MacHeader{SrcMac: r.owner.Mac, DstMac: gizmos.BroadcastMac, RetriesLeft: TschMaxTxRetries})
	return p
}

func (r *Rpl) ReceiveDio(p *gizmos.Packet) {
	r.neighborRank[p.Mac.SrcMac] = p.App.Rank
	r.owner.neighbourSeen(p.Net.SrcIp, p.Mac.SrcMac)
	if r.owner.ID != 0 {
		r.recomputeParent()
	}
}

/*
	maybeSendDao fires with period rpl_daoPeriod jittered +-20% (spec
	§4.6), re-arming itself every time so the schedule survives parent
	changes without operator intervention.
*/
func (r *Rpl) maybeSendDao(uint64) {
	if r.owner.Tsch.IsSynced() && r.preferredParent != (gizmos.Mac{}) {
		parentID, _ := r.world.moteIDForMac(r.preferredParent)
		p := gizmos.Mk_packet(gizmos.PTypeDao, gizmos.NetHeader{SrcIp: r.owner.Global, DstIp: r.world.Motes[0].Global, HopLimit: 64, PacketLength: 20})
		p.App.ChildId = r.owner.ID
		p.App.ParentId = parentID
		r.owner.Sixlowpan.Send(p)
	}
	next := r.world.Rng.Jitter(r.world.Settings.RplDaoPeriod, 0.20)
	asns := gizmos.Seconds2asn(next, r.world.Settings.TschSlotDuration)
	if asns == 0 {
		asns = 1
	}
	r.world.Engine.Schedule_at_asn(r.world.Engine.Now()+asns, OrderStackTask, "rpl-dao:"+r.owner.Mac.String(), r.maybeSendDao)
}

// ReceiveDao is only meaningful at the root: record the reporting child's chosen parent.
func (r *Rpl) ReceiveDao(p *gizmos.Packet) {
	if r.owner.ID != 0 || r.tree == nil {
		return
	}
	r.tree.Record(p.App.ChildId, p.App.ParentId)
}

// ComputeSourceRoute builds the root-to-dest hop list, or gizmos.ErrNoRoute if the chain is broken.
func (r *Rpl) ComputeSourceRoute(destID int) ([]gizmos.Mac, error) {
	if r.owner.ID != 0 || r.tree == nil {
		return nil, gizmos.ErrNoRoute
	}
	return r.tree.PathTo(destID, func(id int) gizmos.Mac { return r.world.Motes[id].Mac })
}
