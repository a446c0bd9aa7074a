// vi: sw=4 ts=4:

/*

	Mnemonic:	packet
	Abstract:	"object" that manages a single in-flight frame as it moves
				through the stack. Replaces the dynamically typed dict that
				the original python carried (§9): a packet is a tagged
				variant over the frame types defined by PType, plus the
				net/mac envelopes common to all of them.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	Mods:		Adapted from gizmos/pledge.go's "object that manages a
				reservation" shape (constructor + plain exported payload
				struct for json) to a frame-in-flight object.
*/

package gizmos

// PType enumerates the frame types a Packet can carry (spec §3).
type PType int

const (
	PTypeData PType = iota
	PTypeFrag
	PTypeDio
	PTypeDao
	PTypeEb
	PTypeJoinRequest
	PTypeJoinResponse
	PTypeSixp
)

func (t PType) String() string {
	switch t {
	case PTypeData:
		return "DATA"
	case PTypeFrag:
		return "FRAG"
	case PTypeDio:
		return "DIO"
	case PTypeDao:
		return "DAO"
	case PTypeEb:
		return "EB"
	case PTypeJoinRequest:
		return "JOIN_REQUEST"
	case PTypeJoinResponse:
		return "JOIN_RESPONSE"
	case PTypeSixp:
		return "SIXP"
	}
	return "UNKNOWN"
}

// NetHeader is the common 6LoWPAN/IP-ish header every packet carries.
type NetHeader struct {
	SrcIp        Ip
	DstIp        Ip
	HopLimit     int
	SourceRoute  []Mac // present only on a downward, source-routed packet
	PacketLength int   // bytes, used to decide whether to fragment
	Downward     bool
	RankError    bool
}

// MacHeader is added by TSCH when a packet is handed down to the link layer.
type MacHeader struct {
	SrcMac      Mac
	DstMac      Mac
	RetriesLeft int
}

// AppPayload carries the type-specific application fields (spec §3: "app").
type AppPayload struct {
	AppCounter int     // monotonic per-source application sequence number
	TxAsn      uint64  // ASN at which App generated this packet (for latency)
	Rank       uint16  // DIO/DAO carried rank
	ChildId    int     // DAO: child reporting in
	ParentId   int     // DAO: child's chosen parent
	PledgeId   int     // SecJoin: stateless_proxy pledge identifier
	Sixp       SixpApp // 6P command/return fields, valid iff Type==PTypeSixp
	Frag       FragApp // fragmentation fields, valid iff Type==PTypeFrag
}

// SixpFrame distinguishes the three roles a SIXP packet may carry (spec §4.8).
type SixpFrame int

const (
	SixpRequest SixpFrame = iota
	SixpResponse
	SixpConfirmation
)

// SixpApp carries the 6P-specific fields of a SIXP frame.
type SixpApp struct {
	Frame      SixpFrame
	Command    int
	ReturnCode int
	SeqNum     byte
	CellList   []CellLocator
	NumCells   int
}

// CellLocator names a single (slot_offset, channel_offset) pair without
// the per-instance counters a live Cell carries.
type CellLocator struct {
	SlotOffset    int
	ChannelOffset int
}

// FragApp carries the fields specific to a fragment.
type FragApp struct {
	DatagramTag      int
	DatagramOffset   int // in fragmentation units, 0 for the first fragment
	DatagramSize     int // total reassembled size, carried on every fragment (reassembly reads it from the last)
	OriginalType     PType
	IsLastFragment   bool
}

/*
	Packet is the envelope the whole stack passes around. Mac is the
	nil Mac{} value (all-zero) until TSCH attaches it.
*/
type Packet struct {
	Type PType
	Net  NetHeader
	App  AppPayload
	Mac  MacHeader

	hasMac bool
}

/*
	Mk_packet builds a bare packet of the given type with a net header;
	the app payload is filled in by the caller since its shape depends
	on Type.
*/
func Mk_packet(t PType, net NetHeader) *Packet {
	return &Packet{Type: t, Net: net}
}

func (p *Packet) Attach_mac(mac MacHeader) {
	p.Mac = mac
	p.hasMac = true
}

func (p *Packet) Has_mac() bool {
	return p != nil && p.hasMac
}

/*
	Zero scrubs a dropped packet's content so that a stray reference
	held elsewhere cannot be further processed (spec §7: "packet content
	zeroed so further processing is impossible").
*/
func (p *Packet) Zero() {
	if p == nil {
		return
	}
	*p = Packet{}
}

// Clone returns a deep-enough copy safe to mutate independently (fragmentation
// needs to stamp per-fragment net/app fields onto otherwise shared data).
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	cp := *p
	if len(p.Net.SourceRoute) > 0 {
		cp.Net.SourceRoute = append([]Mac(nil), p.Net.SourceRoute...)
	}
	if len(p.App.Sixp.CellList) > 0 {
		cp.App.Sixp.CellList = append([]CellLocator(nil), p.App.Sixp.CellList...)
	}
	return &cp
}
