package managers

import "testing"

func TestRssiToPdr_anchors(t *testing.T) {
	if got := RssiToPdr(-97); got != 0.0 {
		t.Fatalf("expected 0.0 at -97 dBm, got %v", got)
	}
	if got := RssiToPdr(-79); got != 1.0 {
		t.Fatalf("expected 1.0 at -79 dBm, got %v", got)
	}
	if got := RssiToPdr(-93.6); got < 0.499 || got > 0.501 {
		t.Fatalf("expected ~0.5 at -93.6 dBm, got %v", got)
	}
	if got := RssiToPdr(-120); got != 0.0 {
		t.Fatalf("expected 0.0 below the table's floor, got %v", got)
	}
	if got := RssiToPdr(0); got != 1.0 {
		t.Fatalf("expected 1.0 above the table's ceiling, got %v", got)
	}
}

func TestMk_fully_meshed_all_pairs_usable(t *testing.T) {
	m := Mk_fully_meshed(4, 2)
	if m.GetPdr(0, 1, 0) != 1.0 {
		t.Fatalf("expected a perfect link between any two motes")
	}
	if m.GetPdr(0, 0, 0) != 0 {
		t.Fatalf("self-links must be unusable")
	}
}

func TestMk_linear_only_adjacent_usable(t *testing.T) {
	m := Mk_linear(3, 1)
	if m.GetPdr(0, 1, 0) != 1.0 {
		t.Fatalf("expected motes 0 and 1 to be linked")
	}
	if m.GetPdr(0, 2, 0) != 0 {
		t.Fatalf("expected non-adjacent motes 0 and 2 to be unlinked")
	}
}

func TestTrace_Advance_moves_forward_only(t *testing.T) {
	tr := &Trace{cur: make(map[[3]int]link)}
	tr.rows = []traceRow{
		{asn: 0, src: 0, dst: 1, ch: 0, pdr: 0.1, rssi: -90},
		{asn: 5, src: 0, dst: 1, ch: 0, pdr: 0.9, rssi: -60},
	}

	tr.Advance(0)
	if got := tr.GetPdr(0, 1, 0); got != 0.1 {
		t.Fatalf("expected row 0's pdr at asn 0, got %v", got)
	}

	tr.Advance(5)
	if got := tr.GetPdr(0, 1, 0); got != 0.9 {
		t.Fatalf("expected row 1's pdr after advancing to asn 5, got %v", got)
	}

	tr.Advance(2) // moving "backward" must not re-apply an earlier row
	if got := tr.GetPdr(0, 1, 0); got != 0.9 {
		t.Fatalf("Advance should never move the cursor backward, got %v", got)
	}
}
