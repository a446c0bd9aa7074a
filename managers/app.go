// vi: sw=4 ts=4:

/*

	Mnemonic:	app
	Abstract:	The traffic generator every mote (but the root) runs:
				periodic upstream DATA with jittered period,
				stamped with an appcounter and the generating ASN so the
				root can derive latency on arrival (spec §4.10).

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		app_pkPeriod, app_pkPeriodVar.
*/

package managers

import "github.com/att/sixtisch-sim/gizmos"

// AppPayloadLength is the fixed size, in bytes, of one upstream DATA report.
const AppPayloadLength = 10

type App struct {
	owner   *Mote
	world   *World
	counter int
}

func Mk_app(owner *Mote, world *World) *App {
	return &App{owner: owner, world: world}
}

func (a *App) tag() string { return "app:" + a.owner.Mac.String() }

// Boot arms the first upstream report; the root never originates application traffic.
func (a *App) Boot() {
	if a.owner.ID == 0 {
		return
	}
	a.scheduleNext()
}

func (a *App) scheduleNext() {
	period := a.world.Rng.Jitter(a.world.Settings.AppPkPeriod, a.world.Settings.AppPkPeriodVar)
	asns := secondsToAsns(a.world, period)
	a.world.Engine.Schedule_at_asn(a.world.Engine.Now()+asns, OrderStackTask, a.tag(), a.generate)
}

func (a *App) generate(uint64) {
	p := gizmos.Mk_packet(gizmos.PTypeData, gizmos.NetHeader{
		SrcIp:        a.owner.Global,
		DstIp:        a.world.Motes[0].Global,
		HopLimit:     64,
		PacketLength: AppPayloadLength,
	})
	p.App.AppCounter = a.counter
	p.App.TxAsn = a.world.Engine.Now()
	a.counter++

	a.owner.Sixlowpan.Send(p)
	a.world.Log.Emit(a.world.Engine.Now(), EvAppTx, map[string]any{"mote_id": a.owner.ID, "appcounter": p.App.AppCounter})
	a.scheduleNext()
}

// Receive is called only at the root, once 6LoWPAN has delivered a reassembled DATA packet.
func (a *App) Receive(p *gizmos.Packet) {
	now := a.world.Engine.Now()
	latency := now - p.App.TxAsn
	srcID, _ := a.world.moteIDForIp(p.Net.SrcIp)
	a.world.Log.Emit(now, EvAppRx, map[string]any{
		"mote_id":      srcID,
		"appcounter":   p.App.AppCounter,
		"latency_slots": latency,
	})
}
