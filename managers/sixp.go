// vi: sw=4 ts=4:

/*

	Mnemonic:	sixp
	Abstract:	6P cell-negotiation transaction protocol (spec §4.8): one
				outstanding transaction per (initiator, responder) pair,
				2-step when a cell list travels with the request, 3-step
				otherwise.

				Grounded on managers/res_mgr.go's reservation handshake: a
				request names the resource wanted and the counterpart either
				grants or rejects it. 6P is that same shape specialised to
				cells and a link-layer peer instead of a path and an agent.
				Only the responder's schedule is changed by an exchange; the
				initiator receives the granted cells through its callback
				and does not install them itself.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		none directly; reacts to sf.go's cell requests.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

type SixpCommand int

const (
	SixpAdd SixpCommand = iota
	SixpDelete
	SixpRelocate
	SixpCount
	SixpList
	SixpClear
	SixpSignal
)

type SixpReturnCode int

const (
	SixpSuccess SixpReturnCode = iota
	SixpErrSeqnum
	SixpErrBusy
	SixpErrNores
	SixpErrReset
	SixpErrCelllist
	SixpErrVersion
	SixpErrSfid
)

// SixpCallback is invoked exactly once per transaction: on completion, with the
// responder's granted cell list, or on ERR_* / TIMEOUT with an empty one.
type SixpCallback func(rc SixpReturnCode, grantedCells []gizmos.CellLocator)

/*
	transaction tracks one in-flight exchange, from either side. `steps`
	is 2 or 3. initiator is true if this mote sent the original request.
*/
type transaction struct {
	peer        gizmos.Mac
	steps       int
	seqNum      byte
	command     SixpCommand
	cellList    []gizmos.CellLocator
	numCells    int
	initiator   bool
	callback    SixpCallback
	timeoutTag  string
	lastRequest *gizmos.Packet // kept to detect a retransmitted duplicate request
}

type Sixp struct {
	owner *Mote
	world *World

	seqNumByPeer map[gizmos.Mac]byte
	txn          map[gizmos.Mac]*transaction
}

func Mk_sixp(owner *Mote, world *World) *Sixp {
	return &Sixp{owner: owner, world: world, seqNumByPeer: make(map[gizmos.Mac]byte), txn: make(map[gizmos.Mac]*transaction)}
}

func (sx *Sixp) is2Step(cmd SixpCommand, cellList []gizmos.CellLocator) bool {
	return len(cellList) > 0
}

func (sx *Sixp) stepsFor(cmd SixpCommand, cellList []gizmos.CellLocator) int {
	if sx.is2Step(cmd, cellList) {
		return 2
	}
	return 3
}

// timeoutSeconds approximates the round-trip budget from slotframe length and max
// backoff (spec §4.8), scaled by the number of round trips the transaction needs.
func (sx *Sixp) timeoutSeconds(steps int) float64 {
	slot := sx.world.Settings.TschSlotDuration
	frame := float64(sx.world.Settings.TschSlotframeLength)
	backoffSlots := float64(int(1) << uint(TschMaxBackoffExponent))
	return float64(steps) * (frame + backoffSlots) * slot
}

func (sx *Sixp) request(peer gizmos.Mac, cmd SixpCommand, cellList []gizmos.CellLocator, numCells int, cb SixpCallback) {
	if _, busy := sx.txn[peer]; busy {
		cb(SixpErrBusy, nil)
		return
	}
	steps := sx.stepsFor(cmd, cellList)
	seq := sx.nextSeqForRequest(peer)

	t := &transaction{peer: peer, steps: steps, seqNum: seq, command: cmd, cellList: cellList, numCells: numCells, initiator: true, callback: cb, timeoutTag: sx.tag(peer)}
	sx.txn[peer] = t

	p := sx.buildFrame(gizmos.SixpRequest, peer, cmd, SixpSuccess, seq, cellList, numCells)
	t.lastRequest = p
	sx.send(p)
	sx.armTimeout(t)
}

func (sx *Sixp) nextSeqForRequest(peer gizmos.Mac) byte {
	return sx.seqNumByPeer[peer]
}

// RequestAdd asks peer to allocate numCells more cells, offering cellList as candidates.
func (sx *Sixp) RequestAdd(peer gizmos.Mac, cellList []gizmos.CellLocator, numCells int, cb SixpCallback) {
	sx.request(peer, SixpAdd, cellList, numCells, cb)
}

// RequestDelete asks peer to free the named cells (or numCells of its choosing if cellList is empty).
func (sx *Sixp) RequestDelete(peer gizmos.Mac, cellList []gizmos.CellLocator, numCells int, cb SixpCallback) {
	sx.request(peer, SixpDelete, cellList, numCells, cb)
}

// RequestRelocate asks peer to move cellList onto one of candidateCells.
func (sx *Sixp) RequestRelocate(peer gizmos.Mac, cellList, candidateCells []gizmos.CellLocator, cb SixpCallback) {
	t := &transaction{peer: peer, steps: sx.stepsFor(SixpRelocate, candidateCells), seqNum: sx.nextSeqForRequest(peer), command: SixpRelocate, cellList: cellList, initiator: true, callback: cb, timeoutTag: sx.tag(peer)}
	if _, busy := sx.txn[peer]; busy {
		cb(SixpErrBusy, nil)
		return
	}
	sx.txn[peer] = t
	p := sx.buildFrame(gizmos.SixpRequest, peer, SixpRelocate, SixpSuccess, t.seqNum, append(append([]gizmos.CellLocator{}, cellList...), candidateCells...), len(cellList))
	t.lastRequest = p
	sx.send(p)
	sx.armTimeout(t)
}

// RequestClear resets the SeqNum held with peer (spec §4.8: "On CLEAR, the responder resets its SeqNum").
func (sx *Sixp) RequestClear(peer gizmos.Mac, cb SixpCallback) {
	sx.request(peer, SixpClear, nil, 0, cb)
}

func (sx *Sixp) tag(peer gizmos.Mac) string { return "sixp:" + sx.owner.Mac.String() + ">" + peer.String() }

func (sx *Sixp) armTimeout(t *transaction) {
	secs := sx.timeoutSeconds(t.steps)
	asns := secondsToAsns(sx.world, secs)
	sx.world.Engine.Schedule_at_asn(sx.world.Engine.Now()+asns, OrderStackTask, t.timeoutTag, func(uint64) { sx.onTimeout(t.peer) })
}

func (sx *Sixp) onTimeout(peer gizmos.Mac) {
	t, ok := sx.txn[peer]
	if !ok {
		return
	}
	delete(sx.txn, peer)
	sx.world.Log.Emit(sx.world.Engine.Now(), EvSixpTxnError, map[string]any{"mote_id": sx.owner.ID, "peer": peer.String(), "reason": "TIMEOUT"})
	if t.callback != nil {
		t.callback(SixpErrReset, nil)
	}
}

func (sx *Sixp) send(p *gizmos.Packet) {
	p.Attach_mac(gizmos.MacHeader{SrcMac: sx.owner.Mac, DstMac: p.Mac.DstMac, RetriesLeft: TschMaxTxRetries})
	sx.owner.Tsch.Enqueue(sx.world.Engine.Now(), p)
}

func (sx *Sixp) buildFrame(frame gizmos.SixpFrame, peer gizmos.Mac, cmd SixpCommand, rc SixpReturnCode, seq byte, cellList []gizmos.CellLocator, numCells int) *gizmos.Packet {
	p := gizmos.Mk_packet(gizmos.PTypeSixp, gizmos.NetHeader{SrcIp: sx.owner.LinkLocal, DstIp: gizmos.Mk_link_local(peer), HopLimit: 1, PacketLength: 15})
	p.App.Sixp = gizmos.SixpApp{Frame: frame, Command: int(cmd), ReturnCode: int(rc), SeqNum: seq, CellList: cellList, NumCells: numCells}
	p.Mac.DstMac = peer
	return p
}

/*
	Receive dispatches an arriving SIXP frame by role (spec §4.8). This is
	called directly by Tsch.dispatch since 6P is a one-hop exchange with a
	known link-layer peer, never routed through 6LoWPAN.
*/
func (sx *Sixp) Receive(p *gizmos.Packet) {
	peer := p.Mac.SrcMac
	switch p.App.Sixp.Frame {
	case gizmos.SixpRequest:
		sx.receiveRequest(peer, p)
	case gizmos.SixpResponse:
		sx.receiveResponse(peer, p)
	case gizmos.SixpConfirmation:
		sx.receiveConfirmation(peer, p)
	}
}

func (sx *Sixp) receiveRequest(peer gizmos.Mac, p *gizmos.Packet) {
	cmd := SixpCommand(p.App.Sixp.Command)
	seq := p.App.Sixp.SeqNum

	if existing, busy := sx.txn[peer]; busy {
		if existing.initiator || existing.lastRequest == nil || existing.lastRequest.App.Sixp.SeqNum != seq || existing.lastRequest.App.Sixp.Command != int(cmd) {
			sx.replyError(peer, seq, SixpErrBusy)
		}
		return // duplicate of the in-flight request: ignored
	}

	expected := sx.seqNumByPeer[peer]
	if cmd != SixpClear && seq != expected {
		sx.replyError(peer, seq, SixpErrSeqnum)
		if sx.owner.Tsch.sf != nil {
			sx.owner.Tsch.sf.Detect_schedule_inconsistency(peer)
		}
		return
	}
	if cmd == SixpClear {
		sx.seqNumByPeer[peer] = 0
	}

	steps := sx.stepsFor(cmd, p.App.Sixp.CellList)
	rc, granted := sx.applyCommand(peer, cmd, p.App.Sixp.CellList, p.App.Sixp.NumCells)

	resp := sx.buildFrame(gizmos.SixpResponse, peer, cmd, rc, seq, granted, len(granted))
	reqCopy := p.Clone()

	if steps == 2 {
		sx.send(resp)
		if rc == SixpSuccess {
			sx.completeSeq(peer)
		}
		sx.world.Log.Emit(sx.world.Engine.Now(), EvSixpTxnCompleted, map[string]any{"mote_id": sx.owner.ID, "peer": peer.String(), "command": int(cmd)})
		return
	}

	t := &transaction{peer: peer, steps: 3, seqNum: seq, command: cmd, initiator: false, timeoutTag: sx.tag(peer), lastRequest: reqCopy}
	sx.txn[peer] = t
	sx.send(resp)
	sx.armTimeout(t)
}

func (sx *Sixp) replyError(peer gizmos.Mac, seq byte, rc SixpReturnCode) {
	sx.send(sx.buildFrame(gizmos.SixpResponse, peer, 0, rc, seq, nil, 0))
}

func (sx *Sixp) receiveResponse(peer gizmos.Mac, p *gizmos.Packet) {
	t, ok := sx.txn[peer]
	if !ok || !t.initiator {
		return
	}
	rc := SixpReturnCode(p.App.Sixp.ReturnCode)

	if t.steps == 2 {
		sx.world.Engine.Remove_event(t.timeoutTag)
		delete(sx.txn, peer)
		if rc == SixpSuccess {
			sx.completeSeq(peer)
		}
		sx.finish(t, rc, p.App.Sixp.CellList)
		return
	}

	if rc != SixpSuccess {
		sx.world.Engine.Remove_event(t.timeoutTag)
		delete(sx.txn, peer)
		sx.finish(t, rc, nil)
		return
	}

	confirm := sx.buildFrame(gizmos.SixpConfirmation, peer, t.command, SixpSuccess, t.seqNum, p.App.Sixp.CellList, p.App.Sixp.NumCells)
	sx.send(confirm)
	t.cellList = p.App.Sixp.CellList
	sx.world.Engine.Remove_event(t.timeoutTag)
	delete(sx.txn, peer)
	if t.command == SixpClear {
		sx.seqNumByPeer[peer] = 0
	}
	sx.completeSeq(peer)
	sx.finish(t, SixpSuccess, t.cellList)
}

func (sx *Sixp) receiveConfirmation(peer gizmos.Mac, p *gizmos.Packet) {
	t, ok := sx.txn[peer]
	if !ok || t.initiator {
		return
	}
	sx.world.Engine.Remove_event(t.timeoutTag)
	delete(sx.txn, peer)
	sx.completeSeq(peer)
	sx.applyCommand(peer, t.command, t.lastRequest.App.Sixp.CellList, t.lastRequest.App.Sixp.NumCells)
	sx.world.Log.Emit(sx.world.Engine.Now(), EvSixpTxnCompleted, map[string]any{"mote_id": sx.owner.ID, "peer": peer.String(), "command": int(t.command)})
}

func (sx *Sixp) finish(t *transaction, rc SixpReturnCode, grantedCells []gizmos.CellLocator) {
	if rc != SixpSuccess {
		sx.world.Log.Emit(sx.world.Engine.Now(), EvSixpTxnError, map[string]any{"mote_id": sx.owner.ID, "peer": t.peer.String(), "reason": "RETURN_CODE"})
	} else {
		sx.world.Log.Emit(sx.world.Engine.Now(), EvSixpTxnCompleted, map[string]any{"mote_id": sx.owner.ID, "peer": t.peer.String(), "command": int(t.command)})
	}
	if t.callback != nil {
		t.callback(rc, grantedCells)
	}
}

// completeSeq advances a peer's SeqNum on successful completion, wrapping 0xFF->1 (0 reserved).
func (sx *Sixp) completeSeq(peer gizmos.Mac) {
	n := sx.seqNumByPeer[peer]
	if n == 0xFF {
		n = 1
	} else {
		n++
		if n == 0 {
			n = 1
		}
	}
	sx.seqNumByPeer[peer] = n
}

/*
	applyCommand is the responder-side effect of a completed negotiation:
	mutate the local schedule and report back what was actually granted.
	ADD picks numCells free (slot,channel) pairs from the offered
	candidates; DELETE/RELOCATE/COUNT/LIST/CLEAR/SIGNAL act on the
	existing schedule.
*/
func (sx *Sixp) applyCommand(peer gizmos.Mac, cmd SixpCommand, candidates []gizmos.CellLocator, numCells int) (SixpReturnCode, []gizmos.CellLocator) {
	sched := sx.owner.Tsch.schedule
	switch cmd {
	case SixpAdd:
		var granted []gizmos.CellLocator
		for _, c := range candidates {
			if len(granted) >= numCells {
				break
			}
			if _, exists := sched.At(c.SlotOffset); exists {
				continue
			}
			sched.Add(gizmos.Mk_cell(c.SlotOffset, c.ChannelOffset, gizmos.OptTx|gizmos.OptRx, peer))
			sx.logCellEvent(EvTschAddCell, peer, c)
			granted = append(granted, c)
		}
		if len(granted) == 0 && numCells > 0 {
			return SixpErrNores, nil
		}
		return SixpSuccess, granted

	case SixpDelete:
		var removed []gizmos.CellLocator
		if len(candidates) > 0 {
			for _, c := range candidates {
				if cell, ok := sched.At(c.SlotOffset); ok && cell.Neighbour == peer {
					sched.Remove(c.SlotOffset)
					sx.logCellEvent(EvTschDeleteCell, peer, c)
					removed = append(removed, c)
				}
			}
		} else {
			for _, cell := range sched.All() {
				if len(removed) >= numCells {
					break
				}
				if cell.Neighbour == peer && cell.Options.Has(gizmos.OptTx) {
					loc := cell.Locator()
					sched.Remove(cell.SlotOffset)
					sx.logCellEvent(EvTschDeleteCell, peer, loc)
					removed = append(removed, loc)
				}
			}
		}
		return SixpSuccess, removed

	case SixpRelocate:
		// candidates is cellsToMove (the first numCells entries, cells currently
		// held with peer) followed by destination candidates; see RequestRelocate.
		if numCells > len(candidates) {
			return SixpErrCelllist, nil
		}
		toMove := candidates[:numCells]
		destCandidates := candidates[numCells:]
		var granted []gizmos.CellLocator
		destIdx := 0
		for _, old := range toMove {
			cell, ok := sched.At(old.SlotOffset)
			if !ok || cell.Neighbour != peer {
				continue
			}
			var dest *gizmos.CellLocator
			for destIdx < len(destCandidates) {
				cand := destCandidates[destIdx]
				destIdx++
				if _, exists := sched.At(cand.SlotOffset); !exists {
					dest = &destCandidates[destIdx-1]
					break
				}
			}
			if dest == nil {
				continue
			}
			opts := cell.Options
			sched.Remove(old.SlotOffset)
			sx.logCellEvent(EvTschDeleteCell, peer, old)
			sched.Add(gizmos.Mk_cell(dest.SlotOffset, dest.ChannelOffset, opts, peer))
			sx.logCellEvent(EvTschAddCell, peer, *dest)
			granted = append(granted, *dest)
		}
		if len(granted) == 0 && numCells > 0 {
			return SixpErrNores, nil
		}
		return SixpSuccess, granted

	case SixpCount:
		return SixpSuccess, nil

	case SixpList:
		var list []gizmos.CellLocator
		for _, cell := range sched.All() {
			if cell.Neighbour == peer {
				list = append(list, cell.Locator())
			}
		}
		return SixpSuccess, list

	case SixpClear:
		for _, cell := range sched.All() {
			if cell.Neighbour == peer {
				loc := cell.Locator()
				sched.Remove(cell.SlotOffset)
				sx.logCellEvent(EvTschDeleteCell, peer, loc)
			}
		}
		return SixpSuccess, nil

	case SixpSignal:
		return SixpSuccess, nil
	}
	return SixpErrSfid, nil
}

// logCellEvent records a schedule mutation applyCommand just made (spec §6's
// tsch.add_cell/tsch.delete_cell events).
func (sx *Sixp) logCellEvent(ev EventType, peer gizmos.Mac, c gizmos.CellLocator) {
	sx.world.Log.Emit(sx.world.Engine.Now(), ev, map[string]any{
		"mote_id":        sx.owner.ID,
		"peer":           peer.String(),
		"slot_offset":    c.SlotOffset,
		"channel_offset": c.ChannelOffset,
	})
}
