// vi: sw=4 ts=4:

/*

	Mnemonic:	secjoin
	Abstract:	Pledge <-> join proxy <-> JRC handshake (spec §4.7). Grounded
				on managers/agent.go's request/response-with-retry shape: the
				teacher resent a request to an agent until an ack arrived or
				a retry budget ran out; a pledge resends JOIN_REQUEST the
				same way until a JOIN_RESPONSE arrives or MAX_RETRANSMIT is
				spent.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		secjoin_enabled.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

const (
	SecjoinTimeoutBase          = 10.0 // seconds
	SecjoinTimeoutRandomFactor  = 2.0
	SecjoinMaxRetransmit        = 4
)

/*
	Secjoin is the per-mote secure-join state. Only a pledge (not yet
	joined) runs the retransmission timer; the root, acting as JRC, and
	any already-joined relay answer synchronously out of receive.
*/
type Secjoin struct {
	owner *Mote
	world *World

	joined    bool
	pledgeId  int
	attempt   int
	timeoutTag string
}

func Mk_secjoin(owner *Mote, world *World) *Secjoin {
	return &Secjoin{owner: owner, world: world, joined: owner.ID == 0, pledgeId: owner.ID, timeoutTag: "secjoin:" + owner.Mac.String()}
}

func (s *Secjoin) IsJoined() bool { return s.joined }

/*
	Start is called once TSCH has synchronised (spec §4.7): the root is
	always considered joined; everyone else either joins immediately
	(secjoin_enabled=false) or begins the pledge retransmission loop.
*/
func (s *Secjoin) Start() {
	if s.owner.ID == 0 {
		s.joined = true
		return
	}
	if !s.world.Settings.SecjoinEnabled {
		s.joined = true
		s.world.Log.Emit(s.world.Engine.Now(), EvSecjoinJoined, map[string]any{"mote_id": s.owner.ID})
		return
	}
	if s.joined {
		return
	}
	s.attempt = 0
	s.sendRequest()
}

func (s *Secjoin) sendRequest() {
	p := s.buildJoinRequest()
	s.owner.Sixlowpan.Send(p)
	s.world.Log.Emit(s.world.Engine.Now(), EvSecjoinTx, map[string]any{"mote_id": s.owner.ID, "attempt": s.attempt})

	timeout := s.world.Rng.Uniform(SecjoinTimeoutBase, SecjoinTimeoutBase*SecjoinTimeoutRandomFactor)
	for i := 0; i < s.attempt; i++ {
		timeout *= 2
	}
	asns := secondsToAsns(s.world, timeout)
	s.world.Engine.Schedule_at_asn(s.world.Engine.Now()+asns, OrderStackTask, s.timeoutTag, func(uint64) { s.onTimeout() })
}

func (s *Secjoin) onTimeout() {
	if s.joined {
		return
	}
	s.attempt++
	if s.attempt > SecjoinMaxRetransmit {
		s.owner.Tsch.Desync()
		return
	}
	s.sendRequest()
}

/*
	Receive handles both directions: a pledge's JOIN_RESPONSE (matched by
	stateless_proxy == our own pledge id) and, at the root, a
	JOIN_REQUEST to answer. A join proxy never calls this - the request
	simply forwards like any other upward packet and the response like
	any downward one, since stateless_proxy travels inside the app
	payload rather than needing proxy-local state.
*/
func (s *Secjoin) Receive(p *gizmos.Packet) {
	switch p.Type {
	case gizmos.PTypeJoinRequest:
		if s.owner.ID != 0 {
			return
		}
		resp := gizmos.Mk_packet(gizmos.PTypeJoinResponse, gizmos.NetHeader{SrcIp: s.owner.Global, DstIp: p.Net.SrcIp, HopLimit: 64, PacketLength: 10, Downward: true})
		resp.App.PledgeId = p.App.PledgeId
		route, err := s.world.Motes[0].Rpl.ComputeSourceRoute(p.App.ChildId)
		if err == nil {
			resp.Net.SourceRoute = route
		}
		s.owner.Sixlowpan.Send(resp)

	case gizmos.PTypeJoinResponse:
		if s.joined || p.App.PledgeId != s.pledgeId {
			return
		}
		s.joined = true
		s.world.Engine.Remove_event(s.timeoutTag)
		s.world.Log.Emit(s.world.Engine.Now(), EvSecjoinJoined, map[string]any{"mote_id": s.owner.ID})
	}
}

func secondsToAsns(w *World, seconds float64) uint64 {
	n := gizmos.Seconds2asn(seconds, w.Settings.TschSlotDuration)
	if n == 0 {
		n = 1
	}
	return n
}

func (s *Secjoin) buildJoinRequest() *gizmos.Packet {
	owner := s.owner
	p := gizmos.Mk_packet(gizmos.PTypeJoinRequest, gizmos.NetHeader{SrcIp: owner.LinkLocal, DstIp: gizmos.Mk_link_local(owner.Tsch.JoinProxy()), HopLimit: 1, PacketLength: 10})
	p.App.PledgeId = owner.ID
	p.App.ChildId = owner.ID
	return p
}
