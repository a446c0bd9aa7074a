// vi: sw=4 ts=4:

/*

	Mnemonic:	cell
	Abstract:	"object" that manages a single scheduled cell (slot_offset,
				channel_offset) and the per-mote schedule/queue it lives in.
				Mirrors the bookkeeping shape of gizmos/pledge.go (a pledge
				managed a reservation's commence/expiry/bandwidth; a Cell
				manages a reservation of a recurring slot instead) but the
				resource being reserved is airtime, not switch bandwidth.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package gizmos

// CellOption is a bitmask of {TX, RX, SHARED}.
type CellOption int

const (
	OptTx CellOption = 1 << iota
	OptRx
	OptShared
)

func (o CellOption) Has(f CellOption) bool { return o&f != 0 }

// pdrHistoryBits is the bounded bit-history MSF keeps per cell to estimate PDR.
const pdrHistoryBits = 32

/*
	Cell is one entry in a per-mote TSCH schedule. Neighbour is the
	all-ones Mac when the cell's neighbour is "any" (the minimal/shared
	cell).
*/
type Cell struct {
	SlotOffset    int
	ChannelOffset int
	Options       CellOption
	Neighbour     Mac

	NumTx    int
	NumTxAck int

	history    uint32 // bit i set => the i'th-from-last tx on this cell was ACKed
	historyLen int
}

/*
	Mk_minimal_cell returns the well-known minimal cell every mote installs
	at boot: slot 0, channel 0, {TX,RX,SHARED}, neighbour any.
*/
func Mk_minimal_cell() *Cell {
	return &Cell{SlotOffset: 0, ChannelOffset: 0, Options: OptTx | OptRx | OptShared, Neighbour: BroadcastMac}
}

/*
	Mk_cell builds a dedicated cell toward neighbour.
*/
func Mk_cell(slotOffset, channelOffset int, opts CellOption, neighbour Mac) *Cell {
	return &Cell{SlotOffset: slotOffset, ChannelOffset: channelOffset, Options: opts, Neighbour: neighbour}
}

func (c *Cell) Locator() CellLocator {
	return CellLocator{SlotOffset: c.SlotOffset, ChannelOffset: c.ChannelOffset}
}

/*
	Note_tx records the outcome of one transmission attempt on this cell,
	halving NumTx and NumTxAck once NumTx saturates 256 so that the
	success ratio survives (spec §4.4). The bit-history is not halved; it
	keeps the last pdrHistoryBits outcomes.
*/
func (c *Cell) Note_tx(acked bool) {
	c.NumTx++
	if acked {
		c.NumTxAck++
	}
	c.history = (c.history << 1)
	if acked {
		c.history |= 1
	}
	if c.historyLen < pdrHistoryBits {
		c.historyLen++
	}
	if c.NumTx >= 256 {
		c.NumTx /= 2
		c.NumTxAck /= 2
	}
}

// Pdr_estimate is the fraction of the last historyLen transmissions that were ACKed.
func (c *Cell) Pdr_estimate() float64 {
	if c.historyLen == 0 {
		return 1.0
	}
	var ones int
	for i := 0; i < c.historyLen; i++ {
		if c.history&(1<<uint(i)) != 0 {
			ones++
		}
	}
	return float64(ones) / float64(c.historyLen)
}

// Schedule is the per-mote, per-slotframe-handle set of Cells, keyed by slot offset.
type Schedule struct {
	Handle string // the slotframe this schedule belongs to ("" == the single default slotframe)
	cells  map[int]*Cell
}

func Mk_schedule(handle string) *Schedule {
	return &Schedule{Handle: handle, cells: make(map[int]*Cell, 16)}
}

/*
	Add installs a cell at its slot offset, enforcing cell uniqueness
	(spec §3 invariant): at most one cell per slot_offset per slotframe
	handle. Returns false (no-op) if the slot is already occupied.
*/
func (s *Schedule) Add(c *Cell) bool {
	if _, have := s.cells[c.SlotOffset]; have {
		obj_sheep.Baa(1, "cell: refusing duplicate cell at slot %d on schedule %s", c.SlotOffset, s.Handle)
		return false
	}
	s.cells[c.SlotOffset] = c
	return true
}

func (s *Schedule) Remove(slotOffset int) {
	delete(s.cells, slotOffset)
}

func (s *Schedule) At(slotOffset int) (*Cell, bool) {
	c, ok := s.cells[slotOffset]
	return c, ok
}

func (s *Schedule) All() []*Cell {
	out := make([]*Cell, 0, len(s.cells))
	for _, c := range s.cells {
		out = append(out, c)
	}
	return out
}

func (s *Schedule) Len() int { return len(s.cells) }

/*
	Next_active_slot finds the soonest slot offset >= from (mod
	slotframeLength) that has an installed cell, returning the number
	of slots to wait and the cell. Used by TSCH to park itself on the
	nearest upcoming active slot rather than waking every ASN.
*/
func (s *Schedule) Next_active_slot(from, slotframeLength int) (wait int, cell *Cell, ok bool) {
	if len(s.cells) == 0 {
		return 0, nil, false
	}
	best := -1
	var bestCell *Cell
	for offset, c := range s.cells {
		d := offset - from
		if d < 0 {
			d += slotframeLength
		}
		if best == -1 || d < best {
			best = d
			bestCell = c
		}
	}
	return best, bestCell, true
}

// Queue is the bounded per-mote TX queue (spec §3).
type Queue struct {
	frames []*Packet
	cap    int
}

func Mk_queue(capacity int) *Queue {
	return &Queue{frames: make([]*Packet, 0, capacity), cap: capacity}
}

func (q *Queue) Len() int   { return len(q.frames) }
func (q *Queue) Full() bool { return len(q.frames) >= q.cap }

func (q *Queue) Push(p *Packet) bool {
	if q.Full() {
		return false
	}
	q.frames = append(q.frames, p)
	return true
}

// Find returns the index of the first frame matching pred, or -1.
func (q *Queue) Find(pred func(*Packet) bool) int {
	for i, p := range q.frames {
		if pred(p) {
			return i
		}
	}
	return -1
}

func (q *Queue) At(i int) *Packet { return q.frames[i] }

func (q *Queue) Remove(i int) {
	q.frames = append(q.frames[:i], q.frames[i+1:]...)
}

func (q *Queue) All() []*Packet { return q.frames }
