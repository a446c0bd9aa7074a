package managers

import (
	"testing"

	"github.com/att/sixtisch-sim/gizmos"
)

func newTestWorld(numMotes int) *World {
	settings := Default()
	settings.ExecNumMotes = numMotes
	settings.SecjoinEnabled = false
	return Mk_world(settings, discardWriter{})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRadio_start_tx_then_rx_panics(t *testing.T) {
	w := newTestWorld(2)
	r := w.Motes[0].Radio

	defer func() {
		if rec := recover(); rec == nil {
			t.Fatalf("expected a Violation panic starting rx while already transmitting")
		}
	}()
	r.Start_tx(0, gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{}))
	r.Start_rx(0)
}

func TestRadio_TxDone_charges_and_resets(t *testing.T) {
	w := newTestWorld(2)
	r := w.Motes[0].Radio
	p := gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{})
	p.Attach_mac(gizmos.MacHeader{SrcMac: w.Motes[0].Mac, DstMac: gizmos.BroadcastMac})

	r.Start_tx(0, p)
	r.TxDone(false)

	if r.State() != RadioOff {
		t.Fatalf("expected radio to return to OFF after tx_done")
	}
	if r.ChargeConsumed == 0 {
		t.Fatalf("expected charge to accumulate after a transmission")
	}
}

func TestRadio_RxDone_idle_listen(t *testing.T) {
	w := newTestWorld(2)
	r := w.Motes[0].Radio
	r.Start_rx(0)
	acked := r.RxDone(nil)
	if acked {
		t.Fatalf("idle listen (nil packet) must never ack")
	}
	if r.CountIdle != 1 {
		t.Fatalf("expected idle count to increment")
	}
}
