// vi: sw=4 ts=4:

/*

	Mnemonic:	topology
	Abstract:	Connectivity/propagation: the per-slot resolution of
				concurrent transmissions into per-listener reception
				outcomes (spec §4.2), plus the four Matrix implementations
				that supply per-link (pdr, rssi) pairs.

				Grounded on managers/network.go's role as "the module that
				owns the network graph and is invoked every tick to rebuild
				it" - here the graph is the radio connectivity matrix and
				the periodic rebuild is the per-ASN propagate() self-
				schedule rather than network.go's slower tickler.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package managers

import (
	"bufio"
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/att/sixtisch-sim/gizmos"
	"gopkg.in/yaml.v3"
)

const (
	minRssiDbm  = -97.0 // anchors the rssiToPdr table's zero point
	noiseDbm    = -105.0
	pdrTableMid = -93.6 // Open Questions: the -93.6 anchor wins over -93 (§9)
	pdrTableTop = -79.0
)

func dBmToMw(dbm float64) float64 { return math.Pow(10, dbm/10) }
func mwToDbm(mw float64) float64 {
	if mw <= 0 {
		return -1000
	}
	return 10 * math.Log10(mw)
}

/*
	RssiToPdr maps an RSSI to a PDR via piecewise-linear interpolation of
	the empirical table spec §4.2.e describes: 0.0 at -97 dBm, 0.5 at
	-93.6 dBm, 1.0 at -79 dBm.
*/
func RssiToPdr(rssi float64) float64 {
	switch {
	case rssi <= minRssiDbm:
		return 0.0
	case rssi >= pdrTableTop:
		return 1.0
	case rssi <= pdrTableMid:
		frac := (rssi - minRssiDbm) / (pdrTableMid - minRssiDbm)
		return 0.5 * frac
	default:
		frac := (rssi - pdrTableMid) / (pdrTableTop - pdrTableMid)
		return 0.5 + 0.5*frac
	}
}

// Matrix is the contract Radio relies on (spec §4.2): per-link PDR/RSSI.
type Matrix interface {
	GetPdr(src, dst, ch int) float64
	GetRssi(src, dst, ch int) float64
	// Advance lets a time-varying matrix (Trace) move to the row for asn.
	Advance(asn uint64)
}

// link is the static (pdr, rssi) pair for one (src,dst,ch) (spec §3 "Connectivity matrix").
type link struct {
	pdr  float64
	rssi float64
}

// staticMatrix backs FullyMeshed, Linear and PisterHack: all three precompute
// a fixed (src,dst,ch)->link table at construction and never change it.
type staticMatrix struct {
	numMotes, numChans int
	table              map[[3]int]link
}

func (m *staticMatrix) GetPdr(src, dst, ch int) float64 {
	if src == dst {
		return 0
	}
	return m.table[[3]int{src, dst, ch}].pdr
}
func (m *staticMatrix) GetRssi(src, dst, ch int) float64 {
	if src == dst {
		return -1000
	}
	return m.table[[3]int{src, dst, ch}].rssi
}
func (m *staticMatrix) Advance(uint64) {}

func (m *staticMatrix) set(src, dst, ch int, l link) {
	m.table[[3]int{src, dst, ch}] = l
	m.table[[3]int{dst, src, ch}] = l
}

/*
	Mk_fully_meshed gives every mote a perfect link (pdr 1.0) to every
	other mote on every channel - the no-loss topology boundary scenario
	(spec §8.a uses Linear instead, but FullyMeshed is the degenerate
	all-pairs case of the same construction).
*/
func Mk_fully_meshed(numMotes, numChans int) Matrix {
	m := &staticMatrix{numMotes: numMotes, numChans: numChans, table: make(map[[3]int]link)}
	for ch := 0; ch < numChans; ch++ {
		for i := 0; i < numMotes; i++ {
			for j := i + 1; j < numMotes; j++ {
				m.set(i, j, ch, link{pdr: 1.0, rssi: -50})
			}
		}
	}
	return m
}

/*
	Mk_linear chains mote i to mote i+1 only (pdr 1.0), every other pair
	unusable (pdr 0) - the scenario spec §8.a is built from.
*/
func Mk_linear(numMotes, numChans int) Matrix {
	m := &staticMatrix{numMotes: numMotes, numChans: numChans, table: make(map[[3]int]link)}
	for ch := 0; ch < numChans; ch++ {
		for i := 0; i+1 < numMotes; i++ {
			m.set(i, i+1, ch, link{pdr: 1.0, rssi: -50})
		}
	}
	return m
}

const pisterHackMaxShiftDbm = 40.0 // empirical multipath shift bound

/*
	Mk_pister_hack scatters motes uniformly in a topSquareSide x
	topSquareSide km square (mote 0 pinned at the origin) and derives
	rssi from a log-distance path-loss model plus a random shadowing
	shift drawn from rng once per link and channel, mirroring the
	literature's "Pister-Hack" connectivity model. Per the Open Questions
	resolution, the RSSI computation takes an explicit receiver:
	computeRSSI(mote, neighbour int, x, y []float64) float64 - the
	teacher python's free-function-missing-
	self bug (§9) is not reproduced.
*/
type PisterHack struct {
	staticMatrix
}

func (t *PisterHack) computeRSSI(mote, neighbour int, x, y []float64) float64 {
	dx := x[mote] - x[neighbour]
	dy := y[mote] - y[neighbour]
	d := math.Max(math.Sqrt(dx*dx+dy*dy), 0.001)
	const txPowerDbm = 0.0
	const pl0 = 40.0 // path loss at 1m reference, dB
	const pathLossExp = 3.0
	pathLoss := pl0 + 10*pathLossExp*math.Log10(d*1000.0) // d in km -> meters
	return txPowerDbm - pathLoss
}

func Mk_pister_hack(numMotes, numChans int, squareSideKm float64, rng *gizmos.Rng) Matrix {
	x := make([]float64, numMotes)
	y := make([]float64, numMotes)
	for i := 1; i < numMotes; i++ {
		x[i] = rng.Uniform(0, squareSideKm)
		y[i] = rng.Uniform(0, squareSideKm)
	}
	return mk_pister_hack_placed(numMotes, numChans, x, y, rng)
}

/*
	Mk_pister_hack_from_coords is Mk_pister_hack with the mote layout read
	from a scenario file (loadCoordinates) instead of scattered randomly,
	so a run can be repeated against a fixed, operator-chosen placement.
*/
func Mk_pister_hack_from_coords(numMotes, numChans int, x, y []float64, rng *gizmos.Rng) Matrix {
	return mk_pister_hack_placed(numMotes, numChans, x, y, rng)
}

func mk_pister_hack_placed(numMotes, numChans int, x, y []float64, rng *gizmos.Rng) Matrix {
	t := &PisterHack{staticMatrix: staticMatrix{numMotes: numMotes, numChans: numChans, table: make(map[[3]int]link)}}
	for ch := 0; ch < numChans; ch++ {
		for i := 0; i < numMotes; i++ {
			for j := i + 1; j < numMotes; j++ {
				rssi := t.computeRSSI(i, j, x, y) - rng.Uniform(0, pisterHackMaxShiftDbm)
				pdr := RssiToPdr(rssi)
				t.set(i, j, ch, link{pdr: pdr, rssi: rssi})
			}
		}
	}
	return t
}

/*
	scenarioCoords is the on-disk YAML shape for a fixed mote-placement
	scenario file (spec §6): a flat list of (x, y) km coordinates, one per
	mote id, mote 0 conventionally at or near the origin.
*/
type scenarioCoords struct {
	Motes []struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
	} `yaml:"motes"`
}

// loadCoordinates reads a scenario file and returns its per-mote (x, y) km positions.
func loadCoordinates(path string) (x, y []float64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var sc scenarioCoords
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, nil, err
	}
	x = make([]float64, len(sc.Motes))
	y = make([]float64, len(sc.Motes))
	for i, m := range sc.Motes {
		x[i] = m.X
		y[i] = m.Y
	}
	return x, y, nil
}

// --- Trace: CSV-backed, time-varying matrix (spec §6 trace format) ---

type traceRow struct {
	asn  uint64
	src  int
	dst  int
	ch   int
	pdr  float64
	rssi float64
}

/*
	Trace reads a CSV with header "datetime,src,dst,channel,pdr,rssi" (the
	datetime column is parsed as an integer ASN stamp - stdlib encoding/csv
	is the right tool here, see DESIGN.md). Advance(asn) moves forward to
	the last row whose asn is <= the requested one, per spec §6: "advances
	... to the next row when asn > current_row_asn".
*/
type Trace struct {
	rows    []traceRow
	cur     map[[3]int]link
	rowIdx  int
}

func Mk_trace(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &Trace{cur: make(map[[3]int]link)}
	for i, rec := range records {
		if i == 0 || len(rec) < 6 {
			continue // header
		}
		asn, _ := strconv.ParseUint(rec[0], 10, 64)
		src, _ := strconv.Atoi(rec[1])
		dst, _ := strconv.Atoi(rec[2])
		ch, _ := strconv.Atoi(rec[3])
		pdr, _ := strconv.ParseFloat(rec[4], 64)
		rssi, _ := strconv.ParseFloat(rec[5], 64)
		t.rows = append(t.rows, traceRow{asn: asn, src: src, dst: dst, ch: ch, pdr: pdr, rssi: rssi})
	}
	sort.Slice(t.rows, func(i, j int) bool { return t.rows[i].asn < t.rows[j].asn })
	t.Advance(0)
	return t, nil
}

func (t *Trace) Advance(asn uint64) {
	for t.rowIdx < len(t.rows) && t.rows[t.rowIdx].asn <= asn {
		row := t.rows[t.rowIdx]
		t.cur[[3]int{row.src, row.dst, row.ch}] = link{pdr: row.pdr, rssi: row.rssi}
		t.cur[[3]int{row.dst, row.src, row.ch}] = link{pdr: row.pdr, rssi: row.rssi}
		t.rowIdx++
	}
}

func (t *Trace) GetPdr(src, dst, ch int) float64 {
	if src == dst {
		return 0
	}
	return t.cur[[3]int{src, dst, ch}].pdr
}
func (t *Trace) GetRssi(src, dst, ch int) float64 {
	if src == dst {
		return -1000
	}
	return t.cur[[3]int{src, dst, ch}].rssi
}

// --- propagation (spec §4.2) ---

type transmission struct {
	src    int
	packet *gizmos.Packet
	txTime float64
	acks   int
}

/*
	Propagate resolves one ASN's worth of concurrent transmissions across
	every channel into per-listener reception outcomes, per spec §4.2's
	six numbered steps. RunSimulation arms it at ASN 1 with OrderPropagate;
	each call then reschedules itself at asn+1, so it runs every ASN.
*/
func (w *World) Propagate(asn uint64) {
	w.Topology.Advance(asn)

	for ch := 0; ch < w.Settings.PhyNumChans; ch++ {
		var txs []*transmission
		var listeners []int

		for id, m := range w.Motes {
			switch m.Radio.State() {
			case RadioTx:
				if m.Radio.Channel() == ch {
					txs = append(txs, &transmission{src: id, packet: m.Radio.OngoingPacket(), txTime: m.Radio.TxTime(asn, w.Settings.TschSlotDuration)})
				}
			case RadioRx:
				if m.Radio.Channel() == ch {
					listeners = append(listeners, id)
				}
			}
		}

		sort.Ints(listeners)

		for _, lid := range listeners {
			L := w.Motes[lid]
			type audible struct {
				tx   *transmission
				rssi float64
			}
			var aud []audible
			for _, tx := range txs {
				rssi := w.Topology.GetRssi(tx.src, lid, ch)
				if rssi > minRssiDbm {
					aud = append(aud, audible{tx: tx, rssi: rssi})
				}
			}
			if len(aud) == 0 {
				L.Radio.RxDone(nil)
				continue
			}
			sort.Slice(aud, func(i, j int) bool {
				if aud[i].tx.txTime != aud[j].tx.txTime {
					return aud[i].tx.txTime < aud[j].tx.txTime
				}
				return aud[i].tx.src < aud[j].tx.src
			})
			locked := aud[0]
			noiseMw := dBmToMw(noiseDbm)
			signalMw := dBmToMw(locked.rssi) - noiseMw
			var interfMw float64
			for _, other := range aud[1:] {
				im := dBmToMw(other.rssi) - noiseMw
				if im > 0 {
					interfMw += im
				}
			}
			var sinrDbm float64
			if signalMw < 0 {
				sinrDbm = -10
			} else {
				sinrDbm = mwToDbm(signalMw / (interfMw + noiseMw))
			}
			effRssi := sinrDbm + noiseDbm // equivalent RSSI under pure-noise conditions
			effPdr := RssiToPdr(effRssi) * w.Topology.GetPdr(locked.tx.src, lid, ch)

			if w.Rng.Float64() < effPdr {
				if L.Radio.RxDone(locked.tx.packet) {
					locked.tx.acks++
				}
			} else {
				L.Radio.RxDone(nil)
			}
			if len(aud) > 1 {
				w.Log.Emit(asn, EvPropInterference, map[string]any{
					"channel": ch, "listener": lid, "locked_src": locked.tx.src, "num_interferers": len(aud) - 1,
				})
			}
		}

		for _, tx := range txs {
			if tx.acks > 1 {
				panic(Violation{Reason: "duplicate ACK for a unicast transmission"})
			}
			w.Motes[tx.src].Radio.TxDone(tx.acks == 1)
		}
	}

	for _, m := range w.Motes {
		if m.Radio.State() != RadioOff {
			panic(Violation{Reason: "radio not OFF after propagate"})
		}
	}

	w.Engine.Schedule_at_asn(asn+1, OrderPropagate, "propagate", w.Propagate)
}
