package gizmos

import "testing"

func TestMk_mac_deterministic(t *testing.T) {
	a := Mk_mac(5)
	b := Mk_mac(5)
	if a != b {
		t.Fatalf("Mk_mac not deterministic: %v != %v", a, b)
	}
	if a == Mk_mac(6) {
		t.Fatalf("distinct ids produced the same mac")
	}
}

func TestMac_IsBroadcast(t *testing.T) {
	if !BroadcastMac.IsBroadcast() {
		t.Fatalf("BroadcastMac should report IsBroadcast")
	}
	if Mk_mac(1).IsBroadcast() {
		t.Fatalf("ordinary mac should not report IsBroadcast")
	}
}

func TestMk_link_local_vs_global(t *testing.T) {
	mac := Mk_mac(42)
	ll := Mk_link_local(mac)
	gl := Mk_global(mac)
	if ll == gl {
		t.Fatalf("link-local and global addresses must differ")
	}
	if ll[0] != 0xfe || ll[1] != 0x80 {
		t.Fatalf("link-local address missing fe80::/16 prefix: %v", ll)
	}
	if gl[0] != 0xfd {
		t.Fatalf("global address missing fd00::/8 prefix: %v", gl)
	}
}

func TestIp_IsBroadcast(t *testing.T) {
	if !BroadcastIp.IsBroadcast() {
		t.Fatalf("BroadcastIp should report IsBroadcast")
	}
	if Mk_global(Mk_mac(1)).IsBroadcast() {
		t.Fatalf("ordinary ip should not report IsBroadcast")
	}
}
