// vi: sw=4 ts=4:

/*

	Mnemonic:	radio
	Abstract:	Per-mote radio state machine (spec §4.3): OFF/TX/RX, charge
				accounting for every event, and the small per-radio clock
				drift used to order concurrent transmissions.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

type RadioState int

const (
	RadioOff RadioState = iota
	RadioTx
	RadioRx
)

// Charge constants in microcoulombs, per event outcome (spec §4.3).
const (
	ChargeIdle          = 1.0
	ChargeSleep         = 0.1
	ChargeTxData        = 50.0
	ChargeTxDataAcked   = 54.0 // ACKed unicast TX costs slightly more (RX of the ACK)
	ChargeRx            = 58.0
	ChargeRxAck         = 62.0 // received a frame we decided to ACK
)

const RadioMaxDriftPpm = 30.0

/*
	Radio owns the OFF/TX/RX state machine for one mote. TSCH is the only
	caller of start_tx/start_rx; Connectivity is the only caller of
	tx_done/rx_done, per spec §5's "Connectivity ... writes to receiver
	inboxes by calling their rx_done".
*/
type Radio struct {
	owner *Mote
	world *World

	state   RadioState
	channel int
	ongoing *gizmos.Packet

	driftPpm float64

	ChargeConsumed float64
	CountIdle      int
	CountTx        int
	CountTxAcked   int
	CountRx        int
	CountRxAcked   int
}

func Mk_radio(owner *Mote, world *World) *Radio {
	return &Radio{
		owner:    owner,
		world:    world,
		driftPpm: world.Rng.Uniform(-RadioMaxDriftPpm, RadioMaxDriftPpm),
	}
}

func (r *Radio) State() RadioState     { return r.state }
func (r *Radio) Channel() int          { return r.channel }
func (r *Radio) OngoingPacket() *gizmos.Packet { return r.ongoing }
func (r *Radio) DriftPpm() float64     { return r.driftPpm }

/*
	TxTime returns the instant (in seconds: the slot's nominal start,
	asn * slotDuration, plus this mote's clock offset to the root) its
	ongoing transmission is actually heard at (spec §4.4's drift-chain sum) - used only to
	order concurrent transmissions within a slot, never as wall time.
*/
func (r *Radio) TxTime(asn uint64, slotDuration float64) float64 {
	return float64(asn)*slotDuration + r.owner.Tsch.ClockOffsetToRoot()
}

func (r *Radio) Start_tx(channel int, p *gizmos.Packet) {
	if r.state != RadioOff {
		panic(Violation{Reason: "radio start_tx from non-OFF state"})
	}
	r.state = RadioTx
	r.channel = channel
	r.ongoing = p
}

func (r *Radio) Start_rx(channel int) {
	if r.state != RadioOff {
		panic(Violation{Reason: "radio start_rx from non-OFF state"})
	}
	r.state = RadioRx
	r.channel = channel
}

// TxDone transitions TX->OFF, charges the event, and forwards the outcome to TSCH.
func (r *Radio) TxDone(acked bool) {
	if r.state != RadioTx {
		panic(Violation{Reason: "tx_done while not transmitting"})
	}
	broadcast := r.ongoing != nil && r.ongoing.Mac.DstMac.IsBroadcast()
	r.CountTx++
	switch {
	case acked:
		r.CountTxAcked++
		r.ChargeConsumed += ChargeTxDataAcked
	case broadcast:
		r.ChargeConsumed += ChargeTxData
	default:
		r.ChargeConsumed += ChargeTxData
	}
	p := r.ongoing
	r.ongoing = nil
	r.state = RadioOff
	r.owner.Tsch.TxDone(p, acked)
}

// RxDone transitions RX->OFF, charges the event, forwards to TSCH, and returns whether TSCH ACKed.
func (r *Radio) RxDone(p *gizmos.Packet) bool {
	if r.state != RadioRx {
		panic(Violation{Reason: "rx_done while not receiving"})
	}
	r.state = RadioOff
	if p == nil {
		r.CountIdle++
		r.ChargeConsumed += ChargeIdle
		r.owner.Tsch.RxDone(nil)
		return false
	}
	r.CountRx++
	acked := r.owner.Tsch.RxDone(p)
	if acked {
		r.CountRxAcked++
		r.ChargeConsumed += ChargeRxAck
	} else {
		r.ChargeConsumed += ChargeRx
	}
	return acked
}

// Stats emits the cumulative radio.stats event (spec §6) for this mote.
func (r *Radio) Stats(asn uint64, moteID int) {
	r.world.Log.Emit(asn, EvRadioStats, map[string]any{
		"mote_id":        moteID,
		"idle":           r.CountIdle,
		"tx":             r.CountTx,
		"tx_acked":       r.CountTxAcked,
		"rx":             r.CountRx,
		"rx_acked":       r.CountRxAcked,
		"charge_uc":      r.ChargeConsumed,
	})
}
