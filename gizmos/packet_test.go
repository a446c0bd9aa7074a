package gizmos

import "testing"

func TestPacket_Zero_scrubs_content(t *testing.T) {
	p := Mk_packet(PTypeData, NetHeader{PacketLength: 50})
	p.App.AppCounter = 7
	p.Zero()

	if p.App.AppCounter != 0 || p.Net.PacketLength != 0 {
		t.Fatalf("expected Zero to scrub packet content, got %+v", p)
	}
}

func TestPacket_Attach_mac(t *testing.T) {
	p := Mk_packet(PTypeData, NetHeader{})
	if p.Has_mac() {
		t.Fatalf("a fresh packet should not yet have a mac header")
	}
	p.Attach_mac(MacHeader{SrcMac: Mk_mac(1), DstMac: Mk_mac(2)})
	if !p.Has_mac() {
		t.Fatalf("expected Has_mac to report true after Attach_mac")
	}
}

func TestPacket_Clone_is_independent(t *testing.T) {
	p := Mk_packet(PTypeFrag, NetHeader{SourceRoute: []Mac{Mk_mac(1), Mk_mac(2)}})
	c := p.Clone()
	c.Net.SourceRoute[0] = Mk_mac(99)

	if p.Net.SourceRoute[0] == Mk_mac(99) {
		t.Fatalf("mutating the clone's source route must not affect the original")
	}
}

func TestPType_String(t *testing.T) {
	if PTypeEb.String() != "EB" {
		t.Fatalf("expected EB, got %s", PTypeEb.String())
	}
	if PType(99).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for an out-of-range type")
	}
}
