// vi: sw=4 ts=4:

/*

	Mnemonic:	tools
	Abstract:	General functions that don't warrant their own file.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	Mods:		Adapted from the teacher's tools.go (which converted
				"+nnnn"/timestamp tokens into start/end unix times for a
				reservation window) into the simulator's seconds<->ASN and
				settings-override parsing needs.
*/

package gizmos

import (
	"strconv"
	"strings"

	"github.com/att/gopkgs/clike"
)

/*
	Seconds2asn converts a duration in seconds to a whole number of ASNs,
	rounding up (spec §5: "timeouts... at current_asn + ceil(timeout_seconds
	/ slot_duration)").
*/
func Seconds2asn(seconds, slotDuration float64) uint64 {
	if slotDuration <= 0 {
		return 0
	}
	n := seconds / slotDuration
	whole := uint64(n)
	if float64(whole) < n {
		whole++
	}
	return whole
}

/*
	Toks2map splits a comma separated list of key=value tokens into a map,
	tolerating bare tokens (mapped to the empty string). Ported as-is from
	the teacher's toks2map (§13 May 2014 mod); cmd/simulate uses it to read
	its --set key=value overrides.
*/
func Toks2map(s string) map[string]string {
	m := make(map[string]string)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		idx := strings.Index(tok, "=")
		if idx < 0 {
			m[tok] = ""
			continue
		}
		m[tok[0:idx]] = tok[idx+1:]
	}
	return m
}

/*
	Atoll_default parses s as an integer, returning def on failure, using
	clike.Atoll the way the teacher parses numeric config/commandline
	tokens throughout managers/*.go.
*/
func Atoll_default(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v := clike.Atoll(s)
	if v == 0 && s != "0" {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return def
		}
	}
	return v
}
