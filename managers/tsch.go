// vi: sw=4 ts=4:

/*

	Mnemonic:	tsch
	Abstract:	The TSCH link layer: schedule, TX queue, backoff, time
				synchronisation and EB generation (spec §4.4). The single
				largest component by the original share table (~25%).

				Grounded on managers/fq_mgr.go, the teacher's flow/queue
				manager: fq_mgr owned a per-switch queue and decided, on a
				regular tickle, what to push next; Tsch owns a per-mote
				queue and decides, on every active slot, what to push next.
				The "-ssq_cmd every queue_check seconds" shape becomes
				"decide every active slot" and the push target becomes a
				Cell instead of an OVS queue id.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		tsch_slotDuration, tsch_slotframeLength, tsch_probBcast_ebDioProb
				(EB broadcast probability), tsch_probBcast_dioProb (separate
				DIO broadcast probability, both consumed by runSharedAnySlot
				below), phy_numChans.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

const (
	TschQueueSize           = 10
	TschMaxTxRetries        = 5
	TschMinBackoffExponent  = 1 // Open Questions (§9): start at MIN directly, not MIN-1
	TschMaxBackoffExponent  = 7
)

/*
	Tsch is the per-mote link layer state: the active schedule, the bounded
	TX queue, sync bookkeeping and CSMA-style backoff over the shared/
	autonomous cells.
*/
type Tsch struct {
	owner *Mote
	world *World

	schedule *gizmos.Schedule
	queue    *gizmos.Queue

	isSync      bool
	asnLastSync uint64
	joinProxy   gizmos.Mac
	ebEnabled   bool

	backoffExp      int
	backoffRemain   int

	sf SF // scheduling function, wired at boot
}

func Mk_tsch(owner *Mote, world *World) *Tsch {
	t := &Tsch{
		owner:    owner,
		world:    world,
		schedule: gizmos.Mk_schedule(""),
		queue:    gizmos.Mk_queue(TschQueueSize),
	}
	t.resetBackoff()
	return t
}

func (t *Tsch) tag() string { return "tsch:" + t.owner.Mac.String() }

func (t *Tsch) IsSynced() bool      { return t.isSync }
func (t *Tsch) JoinProxy() gizmos.Mac { return t.joinProxy }
func (t *Tsch) Schedule() *gizmos.Schedule { return t.schedule }
func (t *Tsch) QueueLen() int       { return t.queue.Len() }

func (t *Tsch) resetBackoff() {
	t.backoffExp = TschMinBackoffExponent
	t.backoffRemain = t.world.Rng.Intn(1 << uint(t.backoffExp))
}

/*
	ClockOffsetToRoot sums drift_child-drift_parent along the preferred
	parent chain, seconds since each hop's own last sync (spec §4.4). A
	cycle, a missing parent or a desynced parent stops the walk, returning
	the offset summed over the hops visited so far rather than looping
	forever.
*/
func (t *Tsch) ClockOffsetToRoot() float64 {
	if t.owner.ID == 0 {
		return 0
	}
	seen := map[int]bool{t.owner.ID: true}
	cur := t.owner
	var offset float64
	for {
		parentID, ok := t.world.moteIDForMac(cur.Rpl.PreferredParent())
		if !ok || seen[parentID] {
			return offset
		}
		parent := t.world.Motes[parentID]
		if !parent.Tsch.isSync {
			return offset
		}
		slot := t.world.Settings.TschSlotDuration
		secsSinceSync := float64(t.world.Engine.Now()-cur.Tsch.asnLastSync) * slot
		offset += (cur.Radio.DriftPpm() - parent.Radio.DriftPpm()) * 1e-6 * secsSinceSync
		if parentID == 0 {
			return offset
		}
		seen[parentID] = true
		cur = parent
	}
}

// Boot installs the minimal cell (root) or starts listening for an EB (everyone else).
func (t *Tsch) Boot() {
	if t.owner.ID == 0 {
		t.isSync = true
		t.asnLastSync = 0
		t.schedule.Add(gizmos.Mk_minimal_cell())
		t.ebEnabled = true
		t.arm()
		return
	}
	t.armListenForEb()
}

/*
	Desync abandons the current join proxy and returns to hunting for an
	EB (spec §4.7: "on give-up the pledge desynchronises"), discarding
	whatever partial schedule it had installed on its first EB.
*/
func (t *Tsch) Desync() {
	t.isSync = false
	t.joinProxy = gizmos.Mac{}
	t.schedule = gizmos.Mk_schedule("")
	t.armListenForEb()
}

func (t *Tsch) armListenForEb() {
	t.world.Engine.Schedule_at_asn(t.world.Engine.Now()+1, OrderStackTask, t.tag(), func(asn uint64) {
		if t.isSync {
			return
		}
		ch := t.world.Rng.Intn(t.world.Settings.PhyNumChans)
		t.owner.Radio.Start_rx(ch)
	})
}

func (t *Tsch) arm() {
	if !t.isSync {
		return
	}
	length := t.world.Settings.TschSlotframeLength
	now := t.world.Engine.Now()
	curOffset := int(now % uint64(length))
	wait, _, ok := t.schedule.Next_active_slot((curOffset+1)%length, length)
	if !ok {
		return
	}
	target := now + 1 + uint64(wait)
	t.world.Engine.Schedule_at_asn(target, OrderStackTask, t.tag(), t.runSlot)
}

func (t *Tsch) runSlot(asn uint64) {
	length := t.world.Settings.TschSlotframeLength
	offset := int(asn % uint64(length))
	cell, ok := t.schedule.At(offset)
	if !ok {
		t.arm()
		return
	}

	if cell.Options.Has(gizmos.OptShared) && cell.Neighbour.IsBroadcast() {
		t.runSharedAnySlot(cell)
	} else {
		t.runDedicatedSlot(cell)
	}
	t.arm()
}

func (t *Tsch) runSharedAnySlot(cell *gizmos.Cell) {
	idx := t.queue.Find(func(p *gizmos.Packet) bool {
		return p.Mac.DstMac.IsBroadcast() || !t.hasDedicatedTxCell(p.Mac.DstMac)
	})

	var selected *gizmos.Packet
	if idx >= 0 {
		selected = t.queue.At(idx)
	} else if t.clearToSend() {
		denom := float64(1 + t.owner.Rpl.NumNeighbors())
		ebProb := t.world.Settings.TschProbBcastEbDioProb / denom
		if t.world.Rng.Float64() < ebProb {
			selected = t.generateEb()
		} else {
			dioProb := t.world.Settings.TschProbBcastDioProb / denom
			if t.world.Rng.Float64() < dioProb {
				selected = t.owner.Rpl.BuildDio()
			}
		}
	}

	if selected == nil {
		t.owner.Radio.Start_rx(cell.ChannelOffset)
		return
	}

	if selected.Mac.RetriesLeft < TschMaxTxRetries && t.backoffRemain > 0 {
		t.backoffRemain--
		t.owner.Radio.Start_rx(cell.ChannelOffset)
		return
	}

	t.owner.Radio.Start_tx(cell.ChannelOffset, selected)
}

func (t *Tsch) runDedicatedSlot(cell *gizmos.Cell) {
	idx := t.queue.Find(func(p *gizmos.Packet) bool { return p.Mac.DstMac == cell.Neighbour })
	if idx < 0 {
		t.owner.Radio.Start_rx(cell.ChannelOffset)
		if t.sf != nil {
			t.sf.Indication_dedicated_tx_cell_elapsed(t.owner, cell, false)
		}
		return
	}
	selected := t.queue.At(idx)

	if cell.Options.Has(gizmos.OptShared) && selected.Mac.RetriesLeft < TschMaxTxRetries && t.backoffRemain > 0 {
		t.backoffRemain--
		t.owner.Radio.Start_rx(cell.ChannelOffset)
		if t.sf != nil {
			t.sf.Indication_dedicated_tx_cell_elapsed(t.owner, cell, false)
		}
		return
	}

	t.owner.Radio.Start_tx(cell.ChannelOffset, selected)
	if t.sf != nil {
		t.sf.Indication_dedicated_tx_cell_elapsed(t.owner, cell, true)
	}
}

func (t *Tsch) clearToSend() bool {
	return t.isSync && (t.owner.ID == 0 || t.owner.Secjoin.IsJoined())
}

func (t *Tsch) hasDedicatedTxCell(dst gizmos.Mac) bool {
	for _, c := range t.schedule.All() {
		if c.Neighbour == dst && c.Options.Has(gizmos.OptTx) && !c.Neighbour.IsBroadcast() {
			return true
		}
	}
	return false
}

func (t *Tsch) hasUsableTxCell(dst gizmos.Mac) bool {
	if t.hasDedicatedTxCell(dst) {
		return true
	}
	for _, c := range t.schedule.All() {
		if c.Options.Has(gizmos.OptShared) {
			return true
		}
	}
	return false
}

func (t *Tsch) generateEb() *gizmos.Packet {
	p := gizmos.Mk_packet(gizmos.PTypeEb, gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(t.owner.Mac), DstIp: gizmos.BroadcastIp, HopLimit: 1})
	p.Attach_mac(gizmos.MacHeader{SrcMac: t.owner.Mac, DstMac: gizmos.BroadcastMac, RetriesLeft: TschMaxTxRetries})
	return p
}

/*
	Enqueue places a packet on the TX queue (spec §4.4): rejected (with a
	packet.dropped log line) if the queue is full or the mote has no
	usable TX/SHARED cell at all.
*/
func (t *Tsch) Enqueue(asn uint64, p *gizmos.Packet) bool {
	if t.queue.Full() {
		t.drop(asn, p, DropTxQueueFull)
		return false
	}
	if !t.hasUsableTxCell(p.Mac.DstMac) {
		t.drop(asn, p, DropNoTxCells)
		return false
	}
	p.Mac.RetriesLeft = TschMaxTxRetries
	t.queue.Push(p)
	t.world.Log.Emit(asn, EvTschTxQueueLength, map[string]any{"mote_id": t.owner.ID, "length": t.queue.Len()})
	return true
}

func (t *Tsch) drop(asn uint64, p *gizmos.Packet, reason DropReason) {
	t.world.Log.Emit(asn, EvPacketDropped, map[string]any{"mote_id": t.owner.ID, "reason": string(reason), "type": p.Type.String()})
	p.Zero()
}

/*
	TxDone applies the outcome of one transmission attempt (spec §4.4):
	broadcast frames are never retried; ACKed unicast is removed from the
	queue; unretried-out unicast decrements RetriesLeft and is dropped at
	zero.
*/
func (t *Tsch) TxDone(p *gizmos.Packet, acked bool) {
	asn := t.world.Engine.Now()
	t.world.Log.Emit(asn, EvTschTxDone, map[string]any{"mote_id": t.owner.ID, "type": p.Type.String(), "isACKed": acked})

	if p.Mac.DstMac.IsBroadcast() {
		t.removeFromQueue(p)
		t.resetBackoff()
		return
	}

	cell := t.cellFor(p.Mac.DstMac)

	if acked {
		if cell != nil {
			cell.Note_tx(true)
		}
		if p.Mac.DstMac == t.owner.Rpl.PreferredParent() {
			t.asnLastSync = asn
		}
		t.removeFromQueue(p)
		if cell != nil && cell.Options.Has(gizmos.OptShared) {
			t.resetBackoff()
		} else if cell != nil && t.queue.Len() == 0 {
			t.resetBackoff()
		}
		return
	}

	if cell != nil {
		cell.Note_tx(false)
	}
	p.Mac.RetriesLeft--
	if p.Mac.RetriesLeft <= 0 {
		t.removeFromQueue(p)
		t.drop(asn, p, DropMaxRetries)
	}

	if cell != nil && cell.Options.Has(gizmos.OptShared) {
		t.backoffRemain = t.world.Rng.Intn(1 << uint(t.backoffExp))
		if t.backoffExp < TschMaxBackoffExponent {
			t.backoffExp++
		}
	}
}

func (t *Tsch) cellFor(dst gizmos.Mac) *gizmos.Cell {
	for _, c := range t.schedule.All() {
		if c.Neighbour == dst {
			return c
		}
	}
	for _, c := range t.schedule.All() {
		if c.Neighbour.IsBroadcast() {
			return c
		}
	}
	return nil
}

func (t *Tsch) removeFromQueue(p *gizmos.Packet) {
	for {
		idx := t.queue.Find(func(q *gizmos.Packet) bool { return q == p })
		if idx < 0 {
			return
		}
		t.queue.Remove(idx)
	}
}

/*
	RxDone dispatches a received frame by type (spec §4.4). A nil packet
	means idle listen. While not yet synced this is where an EB is caught.
*/
func (t *Tsch) RxDone(p *gizmos.Packet) bool {
	if !t.isSync {
		if p != nil && p.Type == gizmos.PTypeEb {
			t.receiveEb(p)
		} else {
			t.armListenForEb()
		}
		return false
	}

	if p == nil {
		return false
	}
	if !p.Mac.DstMac.IsBroadcast() && p.Mac.DstMac != t.owner.Mac {
		return false
	}
	t.owner.neighbourSeen(gizmos.Mk_link_local(p.Mac.SrcMac), p.Mac.SrcMac)

	if p.Mac.DstMac == t.owner.Mac {
		if p.Mac.SrcMac == t.owner.Rpl.PreferredParent() {
			t.asnLastSync = t.world.Engine.Now()
		}
		t.dispatch(p)
		return true
	}

	// broadcast: never ACKed, dispatch only EB/DIO.
	t.dispatch(p)
	return false
}

func (t *Tsch) dispatch(p *gizmos.Packet) {
	switch p.Type {
	case gizmos.PTypeSixp:
		t.owner.Sixp.Receive(p)
	case gizmos.PTypeEb:
		t.receiveEb(p)
	case gizmos.PTypeDio, gizmos.PTypeDao, gizmos.PTypeFrag, gizmos.PTypeData, gizmos.PTypeJoinRequest, gizmos.PTypeJoinResponse:
		t.owner.Sixlowpan.Recv(p)
	}
}

func (t *Tsch) receiveEb(p *gizmos.Packet) {
	if t.isSync {
		return
	}
	t.isSync = true
	t.asnLastSync = t.world.Engine.Now()
	t.joinProxy = p.Mac.SrcMac
	t.schedule.Add(gizmos.Mk_minimal_cell())
	t.world.Log.Emit(t.world.Engine.Now(), EvTschSynced, map[string]any{"mote_id": t.owner.ID, "join_proxy": t.joinProxy.String()})
	t.arm()
	t.owner.Secjoin.Start()
}
