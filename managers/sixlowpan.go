// vi: sw=4 ts=4:

/*

	Mnemonic:	sixlowpan
	Abstract:	Fragmentation/reassembly/forwarding (spec §4.5). Grounded on
				managers/network.go's job of finding the next hop for a
				flow across the topology graph, generalised from "Dijkstra
				over switches" to "one of: source route, preferred parent,
				on-link neighbour, join proxy" - the four next-hop rules
				spec §4.5 lists.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		sixlowpan_reassembly_buffers_num, fragmentation,
				fragmentation_ff_vrb_table_size.
*/

package managers

import (
	"github.com/att/sixtisch-sim/gizmos"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	SixlowpanMaxPayloadLen    = 80 // bytes; larger packets are fragmented
	ReassemblyLifetimeSlots   = 1000
	VrbLifetimeSlots          = 1000
)

type reassemblyKey struct {
	src gizmos.Mac
	tag int
}

type reassemblyEntry struct {
	expiresAsn uint64
	net        gizmos.NetHeader
	app        gizmos.AppPayload
	origType   gizmos.PType
	size       int
	received   map[int]int // offset -> SixlowpanMaxPayloadLen (each fragment counted at full size), for completeness check (spec §8.8)
	haveLast   bool
}

type vrbKey struct {
	src gizmos.Mac
	tag int
}

type vrbEntry struct {
	nexthop     gizmos.Mac
	outgoingTag int
	expiresAsn  uint64
	nextOffset  int
	sawLast     bool
}

/*
	Sixlowpan is the per-mote 6LoWPAN layer. The reassembly buffer and the
	VRB table are both bounded LRU maps - at the root the reassembly bound
	is effectively infinite (spec §4.5: "unbounded at the root"). When one
	is full a new entry is refused and its fragment dropped, so the LRU
	never evicts; an entry leaves only when its datagram completes
	(reassembly) or its last fragment passes (VRB). expiresAsn is
	recorded but not checked.
*/
type Sixlowpan struct {
	owner *Mote
	world *World

	reassembly *lru.Cache[reassemblyKey, *reassemblyEntry]
	vrb        *lru.Cache[vrbKey, *vrbEntry]
	reassemCap int
	vrbCap     int

	nextOutgoingTag int
}

func Mk_sixlowpan(owner *Mote, world *World) *Sixlowpan {
	reassemCap := world.Settings.SixlowpanReassemblyBufNum
	if owner.ID == 0 || reassemCap <= 0 {
		reassemCap = 1 << 20 // "unbounded at the root"
	}
	reassem, _ := lru.New[reassemblyKey, *reassemblyEntry](reassemCap)

	vrbCap := world.Settings.FragmentationFfVrbTableSize
	if vrbCap <= 0 {
		vrbCap = 1
	}
	vrb, _ := lru.New[vrbKey, *vrbEntry](vrbCap)

	return &Sixlowpan{owner: owner, world: world, reassembly: reassem, vrb: vrb, reassemCap: reassemCap, vrbCap: vrbCap}
}

func (s *Sixlowpan) asn() uint64 { return s.world.Engine.Now() }

/*
	Send fragments p if its PacketLength exceeds the single-frame payload
	limit, resolves the next-hop MAC, and enqueues onto TSCH. Failure to
	resolve a next hop drops the packet with reason NO_ROUTE.
*/
func (s *Sixlowpan) Send(p *gizmos.Packet) {
	nh, ok := s.nextHop(p)
	if !ok {
		s.drop(p, DropNoRoute)
		return
	}

	if p.Net.PacketLength <= SixlowpanMaxPayloadLen {
		p.Attach_mac(gizmos.MacHeader{SrcMac: s.owner.Mac, DstMac: nh})
		s.owner.Tsch.Enqueue(s.asn(), p)
		return
	}

	tag := s.nextOutgoingTag
	s.nextOutgoingTag++

	unit := SixlowpanMaxPayloadLen
	remaining := p.Net.PacketLength
	offset := 0
	for remaining > 0 {
		chunk := unit
		if chunk > remaining {
			chunk = remaining
		}
		isLast := remaining-chunk == 0
		frag := gizmos.Mk_packet(gizmos.PTypeFrag, p.Net)
		frag.App.Frag = gizmos.FragApp{DatagramTag: tag, DatagramOffset: offset, DatagramSize: p.Net.PacketLength, OriginalType: p.Type, IsLastFragment: isLast}
		if offset == 0 {
			// first fragment carries the net header fields (already copied via p.Net)
		}
		if isLast {
			frag.App.AppCounter = p.App.AppCounter
			frag.App.TxAsn = p.App.TxAsn
			frag.App.Rank = p.App.Rank
		}
		frag.Attach_mac(gizmos.MacHeader{SrcMac: s.owner.Mac, DstMac: nh})
		s.owner.Tsch.Enqueue(s.asn(), frag)
		offset += chunk
		remaining -= chunk
	}
}

/*
	nextHop resolves the next-hop MAC for p per spec §4.5: source-routed
	downward, preferred-parent upward, directly for on-link link-local,
	join_proxy before RPL has a DODAG.
*/
func (s *Sixlowpan) nextHop(p *gizmos.Packet) (gizmos.Mac, bool) {
	if len(p.Net.SourceRoute) > 0 {
		if p.Net.SourceRoute[0] == s.owner.Mac && len(p.Net.SourceRoute) > 1 {
			nh := p.Net.SourceRoute[1]
			p.Net.SourceRoute = p.Net.SourceRoute[1:]
			return nh, true
		}
		if len(p.Net.SourceRoute) >= 1 {
			nh := p.Net.SourceRoute[0]
			return nh, true
		}
	}
	if s.owner.neighbourSet[p.Net.DstIp] != (gizmos.Mac{}) {
		return s.owner.neighbourSet[p.Net.DstIp], true
	}
	if parent := s.owner.Rpl.PreferredParent(); parent != (gizmos.Mac{}) {
		return parent, true
	}
	if s.owner.Tsch.JoinProxy() != (gizmos.Mac{}) {
		return s.owner.Tsch.JoinProxy(), true
	}
	return gizmos.Mac{}, false
}

func (s *Sixlowpan) drop(p *gizmos.Packet, reason DropReason) {
	s.world.Log.Emit(s.asn(), EvPacketDropped, map[string]any{"mote_id": s.owner.ID, "reason": string(reason), "type": p.Type.String()})
	p.Zero()
}

/*
	Recv handles a frame delivered by TSCH: fragments are passed to the
	active fragmentation strategy; a completed datagram (or a directly
	received whole packet) for this mote dispatches by type, otherwise it
	is forwarded toward its destination.
*/
func (s *Sixlowpan) Recv(p *gizmos.Packet) {
	if p.Type == gizmos.PTypeFrag {
		if s.world.Settings.Fragmentation == FragFragmentForwarding && p.Net.DstIp != s.owner.Global {
			s.forwardFragment(p)
			return
		}
		completed := s.reassemble(p)
		if completed == nil {
			return
		}
		p = completed
	}

	if p.Net.DstIp == s.owner.Global || p.Net.DstIp == s.owner.LinkLocal || p.Net.DstIp.IsBroadcast() {
		s.deliver(p)
		return
	}

	s.forwardWhole(p)
}

func (s *Sixlowpan) deliver(p *gizmos.Packet) {
	switch p.Type {
	case gizmos.PTypeData:
		s.owner.App.Receive(p)
	case gizmos.PTypeDio:
		s.owner.Rpl.ReceiveDio(p)
	case gizmos.PTypeDao:
		s.owner.Rpl.ReceiveDao(p)
	case gizmos.PTypeJoinRequest, gizmos.PTypeJoinResponse:
		s.owner.Secjoin.Receive(p)
	}
}

func (s *Sixlowpan) forwardWhole(p *gizmos.Packet) {
	p.Net.HopLimit--
	if p.Net.HopLimit <= 0 {
		s.drop(p, DropTimeExceeded)
		return
	}

	if !p.Net.Downward && p.Mac.SrcMac == s.owner.Rpl.PreferredParent() {
		if p.Net.RankError {
			s.drop(p, DropRankError)
			s.owner.Rpl.ResetTrickle()
			return
		}
		p.Net.RankError = true
	}
	s.Send(p)
}

func (s *Sixlowpan) reassemble(p *gizmos.Packet) *gizmos.Packet {
	key := reassemblyKey{src: p.Mac.SrcMac, tag: p.App.Frag.DatagramTag}
	entry, ok := s.reassembly.Get(key)
	if !ok {
		if s.reassembly.Len() >= s.reassemCap {
			// table full: drop the fragment that triggered this, leaving
			// every in-progress reassembly untouched (spec §8.8).
			s.world.Log.Emit(s.asn(), EvPacketDropped, map[string]any{"mote_id": s.owner.ID, "reason": string(DropReassemblyBufferFull), "type": "FRAG"})
			p.Zero()
			return nil
		}
		entry = &reassemblyEntry{expiresAsn: s.asn() + ReassemblyLifetimeSlots, net: p.Net, received: make(map[int]int)}
		s.reassembly.Add(key, entry)
	}

	if _, dup := entry.received[p.App.Frag.DatagramOffset]; dup {
		return nil // duplicate fragment, silently ignored
	}
	entry.received[p.App.Frag.DatagramOffset] = SixlowpanMaxPayloadLen
	if p.App.Frag.IsLastFragment {
		entry.app = p.App
		entry.origType = p.App.Frag.OriginalType
		entry.size = p.App.Frag.DatagramSize
		entry.haveLast = true
	}

	total := 0
	for _, l := range entry.received {
		total += l
	}
	if !entry.haveLast || total < entry.size {
		return nil
	}

	s.reassembly.Remove(key)
	out := gizmos.Mk_packet(entry.origType, entry.net)
	out.App = entry.app
	out.Attach_mac(p.Mac)
	return out
}

/*
	forwardFragment implements the fragment-forwarding (VRB) strategy
	(spec §4.5): the first fragment creates a VRB entry toward the packet's
	eventual next hop; later fragments are rewritten with the outgoing tag
	and forwarded without reassembly.
*/
func (s *Sixlowpan) forwardFragment(p *gizmos.Packet) {
	key := vrbKey{src: p.Mac.SrcMac, tag: p.App.Frag.DatagramTag}
	entry, ok := s.vrb.Get(key)
	if !ok {
		if s.vrb.Len() >= s.vrbCap {
			// table full: drop the new flow's first fragment, leaving every
			// already-forwarding flow's VRB state untouched (spec §8.8(e)).
			s.world.Log.Emit(s.asn(), EvPacketDropped, map[string]any{"mote_id": s.owner.ID, "reason": string(DropVrbTableFull), "type": "FRAG"})
			p.Zero()
			return
		}
		nh, routeOk := s.nextHop(p)
		if !routeOk {
			s.drop(p, DropNoRoute)
			return
		}
		outTag := s.nextOutgoingTag
		s.nextOutgoingTag++
		entry = &vrbEntry{nexthop: nh, outgoingTag: outTag, expiresAsn: s.asn() + VrbLifetimeSlots}
		s.vrb.Add(key, entry)
	}

	fwd := p.Clone()
	fwd.App.Frag.DatagramTag = entry.outgoingTag
	fwd.Attach_mac(gizmos.MacHeader{SrcMac: s.owner.Mac, DstMac: entry.nexthop})
	s.owner.Tsch.Enqueue(s.asn(), fwd)

	if p.App.Frag.IsLastFragment {
		s.vrb.Remove(key)
	}
}
