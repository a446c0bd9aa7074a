// vi: sw=4 ts=4:

/*

	Mnemonic:	mote
	Abstract:	Mote is the per-node arena element (spec §3): identity plus
				one instance of every stack layer, wired together with back
				references so each layer can reach its siblings the way the
				teacher's agent.go reached its owning switch's other
				managers. World ties the arena together and drives the
				construct/boot/run lifecycle spec §4.1 describes for Engine.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		exec_numMotes, exec_numSlotframesPerRun, sf_class, conn_class.
*/

package managers

import (
	"io"

	"github.com/att/sixtisch-sim/gizmos"
)

/*
	Mote owns one instance of every stack layer plus the on-link neighbour
	set 6LoWPAN consults to resolve a link-local destination without
	going through RPL (spec §3: "Neighbour table / on-link set").
*/
type Mote struct {
	ID        int
	Mac       gizmos.Mac
	LinkLocal gizmos.Ip
	Global    gizmos.Ip

	Radio     *Radio
	Tsch      *Tsch
	Sixlowpan *Sixlowpan
	Rpl       *Rpl
	Secjoin   *Secjoin
	Sixp      *Sixp
	App       *App

	neighbourSet map[gizmos.Ip]gizmos.Mac
}

func Mk_mote(id int, world *World) *Mote {
	mac := gizmos.Mk_mac(id)
	m := &Mote{
		ID:           id,
		Mac:          mac,
		LinkLocal:    gizmos.Mk_link_local(mac),
		Global:       gizmos.Mk_global(mac),
		neighbourSet: make(map[gizmos.Ip]gizmos.Mac),
	}

	m.Radio = Mk_radio(m, world)
	m.Tsch = Mk_tsch(m, world)
	m.Sixlowpan = Mk_sixlowpan(m, world)
	m.Rpl = Mk_rpl(m, world)
	m.Secjoin = Mk_secjoin(m, world)
	m.Sixp = Mk_sixp(m, world)
	m.App = Mk_app(m, world)

	switch world.Settings.SfClass {
	case SfMsf:
		m.Tsch.sf = Mk_msf(m, world)
	default:
		m.Tsch.sf = Mk_sf_none()
	}

	return m
}

/*
	neighbourSeen records mac as reachable at ip (spec §3: "Updated on
	every RX"), notifying the Scheduling Function the first time a peer
	is observed so MSF can install its autonomous cell.
*/
func (m *Mote) neighbourSeen(ip gizmos.Ip, mac gizmos.Mac) {
	_, had := m.neighbourSet[ip]
	m.neighbourSet[ip] = mac
	if !had && m.Tsch.sf != nil {
		m.Tsch.sf.Indication_neighbor_added(mac)
	}
}

func (m *Mote) Boot() {
	m.Tsch.Boot()
	m.Rpl.Boot()
	m.App.Boot()
	if m.Tsch.sf != nil {
		m.Tsch.sf.Boot()
	}
}

/*
	Mk_world builds the simulation context: PRNG, log sink, connectivity
	matrix and the dense mote arena, wiring every mote's reverse-lookup
	entries before any mote is booted.
*/
func Mk_world(settings *Settings, logWriter io.Writer) *World {
	w := &World{Settings: settings}
	w.Rng = gizmos.Mk_rng(settings.Seed)
	w.Log = Mk_sink(logWriter, settings)
	w.Engine = Mk_engine()
	w.Topology = buildTopology(settings, w.Rng)

	w.Motes = make([]*Mote, settings.ExecNumMotes)
	w.macToID = make(map[gizmos.Mac]int, settings.ExecNumMotes)
	w.ipToID = make(map[gizmos.Ip]int, settings.ExecNumMotes)

	for i := 0; i < settings.ExecNumMotes; i++ {
		mote := Mk_mote(i, w)
		w.Motes[i] = mote
		w.macToID[mote.Mac] = i
		w.ipToID[mote.Global] = i
	}

	return w
}

func buildTopology(settings *Settings, rng *gizmos.Rng) Matrix {
	switch settings.ConnClass {
	case ConnLinear:
		return Mk_linear(settings.ExecNumMotes, settings.PhyNumChans)
	case ConnPisterHack:
		if settings.ConnCoordsFile != "" {
			x, y, err := loadCoordinates(settings.ConnCoordsFile)
			if err != nil {
				sheep.Baa(0, "CRI: unable to load mote coordinates %s: %v; scattering randomly instead", settings.ConnCoordsFile, err)
				return Mk_pister_hack(settings.ExecNumMotes, settings.PhyNumChans, settings.TopSquareSide, rng)
			}
			return Mk_pister_hack_from_coords(settings.ExecNumMotes, settings.PhyNumChans, x, y, rng)
		}
		return Mk_pister_hack(settings.ExecNumMotes, settings.PhyNumChans, settings.TopSquareSide, rng)
	case ConnTrace:
		tr, err := Mk_trace(settings.ConnTrace)
		if err != nil {
			sheep.Baa(0, "CRI: unable to load connectivity trace %s: %v; falling back to fully-meshed", settings.ConnTrace, err)
			return Mk_fully_meshed(settings.ExecNumMotes, settings.PhyNumChans)
		}
		return tr
	default:
		return Mk_fully_meshed(settings.ExecNumMotes, settings.PhyNumChans)
	}
}

/*
	RunSimulation is the engine lifecycle of spec §4.1: construct the
	world, boot every mote, arm propagation and the end-of-run event, then
	run to completion. The only internally recovered failure is a single
	Violation, surfaced as the returned error.
*/
func RunSimulation(settings *Settings, logWriter io.Writer) error {
	w := Mk_world(settings, logWriter)
	defer w.Log.Close()

	for _, m := range w.Motes {
		m.Boot()
	}

	w.Engine.Schedule_at_asn(w.Engine.Now()+1, OrderPropagate, "propagate", w.Propagate)

	endAsn := uint64(settings.ExecNumSlotframesPerRun * settings.TschSlotframeLength)
	w.Engine.Schedule_at_asn(endAsn, OrderEndOfSlot, "end-of-sim", func(asn uint64) {
		for _, m := range w.Motes {
			m.Radio.Stats(asn, m.ID)
		}
		w.Engine.Stop()
	})

	return w.Engine.Run()
}
