package managers

import (
	"testing"

	"github.com/att/sixtisch-sim/gizmos"
)

func TestSixlowpan_reassemble_completes_only_after_last_fragment(t *testing.T) {
	w := newTestWorld(2)
	s := w.Motes[1].Sixlowpan
	src := gizmos.Mk_mac(7)
	// two full-size fragments (80 bytes each, per the reassembly accounting below)
	datagramSize := 2 * SixlowpanMaxPayloadLen
	net := gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(src), DstIp: w.Motes[1].Global, PacketLength: datagramSize}

	first := gizmos.Mk_packet(gizmos.PTypeFrag, net)
	first.App.Frag = gizmos.FragApp{DatagramTag: 1, DatagramOffset: 0, DatagramSize: datagramSize, OriginalType: gizmos.PTypeData}
	first.Attach_mac(gizmos.MacHeader{SrcMac: src, DstMac: w.Motes[1].Mac})

	if got := s.reassemble(first); got != nil {
		t.Fatalf("expected nil before the last fragment arrives")
	}

	last := gizmos.Mk_packet(gizmos.PTypeFrag, net)
	last.App.Frag = gizmos.FragApp{DatagramTag: 1, DatagramOffset: SixlowpanMaxPayloadLen, DatagramSize: datagramSize, OriginalType: gizmos.PTypeData, IsLastFragment: true}
	last.Attach_mac(gizmos.MacHeader{SrcMac: src, DstMac: w.Motes[1].Mac})

	out := s.reassemble(last)
	if out == nil {
		t.Fatalf("expected reassembly to complete once total length reaches DatagramSize")
	}
	if out.Type != gizmos.PTypeData {
		t.Fatalf("expected the reassembled packet to carry the original type, got %v", out.Type)
	}
}

func TestSixlowpan_reassemble_ignores_duplicate_fragment(t *testing.T) {
	w := newTestWorld(2)
	s := w.Motes[1].Sixlowpan
	src := gizmos.Mk_mac(7)
	net := gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(src), DstIp: w.Motes[1].Global, PacketLength: 200}

	frag := func() *gizmos.Packet {
		p := gizmos.Mk_packet(gizmos.PTypeFrag, net)
		p.App.Frag = gizmos.FragApp{DatagramTag: 2, DatagramOffset: 0, DatagramSize: 200, OriginalType: gizmos.PTypeData}
		p.Attach_mac(gizmos.MacHeader{SrcMac: src, DstMac: w.Motes[1].Mac})
		return p
	}

	s.reassemble(frag())
	if out := s.reassemble(frag()); out != nil {
		t.Fatalf("expected a duplicate offset to be silently dropped, not completed")
	}
}

func TestSixlowpan_nextHop_prefers_source_route_over_parent(t *testing.T) {
	w := newTestWorld(3)
	s := w.Motes[1].Sixlowpan
	downstream := gizmos.Mk_mac(99)
	w.Motes[1].Rpl.preferredParent = gizmos.Mk_mac(1)

	p := gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{SourceRoute: []gizmos.Mac{w.Motes[1].Mac, downstream}})
	nh, ok := s.nextHop(p)
	if !ok || nh != downstream {
		t.Fatalf("expected the source route to pick the next hop, got %v ok=%v", nh, ok)
	}
}

func TestSixlowpan_nextHop_falls_back_to_preferred_parent(t *testing.T) {
	w := newTestWorld(3)
	s := w.Motes[1].Sixlowpan
	parent := gizmos.Mk_mac(1)
	w.Motes[1].Rpl.preferredParent = parent

	p := gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{DstIp: gizmos.Mk_global(gizmos.Mk_mac(55))})
	nh, ok := s.nextHop(p)
	if !ok || nh != parent {
		t.Fatalf("expected to fall back to the preferred parent, got %v ok=%v", nh, ok)
	}
}

func TestSixlowpan_nextHop_fails_without_any_route(t *testing.T) {
	w := newTestWorld(2)
	s := w.Motes[1].Sixlowpan

	p := gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{DstIp: gizmos.Mk_global(gizmos.Mk_mac(55))})
	if _, ok := s.nextHop(p); ok {
		t.Fatalf("expected no route to be found with no source route, neighbour, parent, or join proxy")
	}
}

func TestSixlowpan_forwardFragment_creates_vrb_entry_and_frees_it_on_last(t *testing.T) {
	w := newTestWorld(3)
	settings := w.Settings
	settings.Fragmentation = FragFragmentForwarding
	s := w.Motes[1].Sixlowpan
	src := gizmos.Mk_mac(7)
	w.Motes[1].Rpl.preferredParent = w.Motes[0].Mac
	net := gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(src), DstIp: w.Motes[0].Global, PacketLength: 200}

	first := gizmos.Mk_packet(gizmos.PTypeFrag, net)
	first.App.Frag = gizmos.FragApp{DatagramTag: 3, DatagramOffset: 0, DatagramSize: 200}
	first.Attach_mac(gizmos.MacHeader{SrcMac: src, DstMac: w.Motes[1].Mac})
	s.forwardFragment(first)

	key := vrbKey{src: src, tag: 3}
	if _, ok := s.vrb.Get(key); !ok {
		t.Fatalf("expected the first fragment to install a VRB entry")
	}

	last := gizmos.Mk_packet(gizmos.PTypeFrag, net)
	last.App.Frag = gizmos.FragApp{DatagramTag: 3, DatagramOffset: SixlowpanMaxPayloadLen, DatagramSize: 200, IsLastFragment: true}
	last.Attach_mac(gizmos.MacHeader{SrcMac: src, DstMac: w.Motes[1].Mac})
	s.forwardFragment(last)

	if _, ok := s.vrb.Get(key); ok {
		t.Fatalf("expected the VRB entry to be freed once the last fragment passes through")
	}
}

func TestSixlowpan_forwardFragment_drops_new_flow_when_vrb_table_full(t *testing.T) {
	settings := Default()
	settings.ExecNumMotes = 3
	settings.SecjoinEnabled = false
	settings.Fragmentation = FragFragmentForwarding
	settings.FragmentationFfVrbTableSize = 1
	w := Mk_world(settings, discardWriter{})

	s := w.Motes[1].Sixlowpan
	w.Motes[1].Rpl.preferredParent = w.Motes[0].Mac

	firstSrc := gizmos.Mk_mac(7)
	firstNet := gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(firstSrc), DstIp: w.Motes[0].Global, PacketLength: 200}
	first := gizmos.Mk_packet(gizmos.PTypeFrag, firstNet)
	first.App.Frag = gizmos.FragApp{DatagramTag: 1, DatagramOffset: 0, DatagramSize: 200}
	first.Attach_mac(gizmos.MacHeader{SrcMac: firstSrc, DstMac: w.Motes[1].Mac})
	s.forwardFragment(first)

	firstKey := vrbKey{src: firstSrc, tag: 1}
	if _, ok := s.vrb.Get(firstKey); !ok {
		t.Fatalf("expected the first flow's VRB entry to be installed")
	}

	secondSrc := gizmos.Mk_mac(9)
	secondNet := gizmos.NetHeader{SrcIp: gizmos.Mk_link_local(secondSrc), DstIp: w.Motes[0].Global, PacketLength: 200}
	second := gizmos.Mk_packet(gizmos.PTypeFrag, secondNet)
	second.App.Frag = gizmos.FragApp{DatagramTag: 2, DatagramOffset: 0, DatagramSize: 200}
	second.Attach_mac(gizmos.MacHeader{SrcMac: secondSrc, DstMac: w.Motes[1].Mac})
	s.forwardFragment(second)

	if _, ok := s.vrb.Get(firstKey); !ok {
		t.Fatalf("expected the first flow's VRB entry to survive: the new fragment should be dropped, not the old entry evicted")
	}
	secondKey := vrbKey{src: secondSrc, tag: 2}
	if _, ok := s.vrb.Get(secondKey); ok {
		t.Fatalf("expected the second flow's fragment to be dropped when the VRB table is full, not admitted")
	}
}
