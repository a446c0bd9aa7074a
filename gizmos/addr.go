// vi: sw=4 ts=4:

/*

	Mnemonic:	addr
	Abstract:	EUI-64 MAC addresses and the IPv6 addresses derived from them.
				Every mote id maps deterministically to a MAC so that two
				runs with the same exec_numMotes produce byte-identical
				addressing (needed for the determinism property in spec §5).

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package gizmos

import "fmt"

// Mac is an EUI-64 style link-layer address, stored as 8 bytes.
type Mac [8]byte

// BroadcastMac is the all-ones EUI-64 address (spec §6).
var BroadcastMac = Mac{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

/*
	Mk_mac builds the deterministic EUI-64 address for a mote id: the
	fixed prefix 02-00-00-00-00 followed by the id split across the
	low three bytes (id_high/id_mid/id_low in the spec's phrasing).
*/
func Mk_mac(id int) Mac {
	var m Mac
	m[0] = 0x02
	m[1] = 0x00
	m[2] = 0x00
	m[3] = 0x00
	m[4] = 0x00
	m[5] = byte(id >> 16)
	m[6] = byte(id >> 8)
	m[7] = byte(id)
	return m
}

func (m Mac) IsBroadcast() bool {
	return m == BroadcastMac
}

func (m Mac) String() string {
	return fmt.Sprintf("%02x-%02x-%02x-%02x-%02x-%02x-%02x-%02x", m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7])
}

// Ip is an IPv6 address, stored as 16 bytes.
type Ip [16]byte

// BroadcastIp is the link-local RPL all-nodes multicast address (ff02::1a).
var BroadcastIp = Ip{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x1a}

/*
	Mk_link_local builds a link-local IPv6 address (fe80::/64) with the
	EUI-64 in the low 8 bytes, per RFC 4291 appendix A (u/l bit flipped).
*/
func Mk_link_local(mac Mac) Ip {
	var ip Ip
	ip[0] = 0xfe
	ip[1] = 0x80
	copy(ip[8:], mac[:])
	ip[8] ^= 0x02 // flip the universal/local bit
	return ip
}

/*
	Mk_global builds the single global prefix (fd00::/64, the "mesh
	local prefix" in 6TiSCH parlance) used for every mote's routable
	address, again keyed off of the EUI-64.
*/
func Mk_global(mac Mac) Ip {
	var ip Ip
	ip[0] = 0xfd
	copy(ip[8:], mac[:])
	ip[8] ^= 0x02
	return ip
}

func (a Ip) IsBroadcast() bool {
	return a == BroadcastIp
}

func (a Ip) String() string {
	return fmt.Sprintf("%x:%x:%x:%x:%x:%x:%x:%x",
		uint16(a[0])<<8|uint16(a[1]), uint16(a[2])<<8|uint16(a[3]),
		uint16(a[4])<<8|uint16(a[5]), uint16(a[6])<<8|uint16(a[7]),
		uint16(a[8])<<8|uint16(a[9]), uint16(a[10])<<8|uint16(a[11]),
		uint16(a[12])<<8|uint16(a[13]), uint16(a[14])<<8|uint16(a[15]))
}
