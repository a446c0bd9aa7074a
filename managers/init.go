// vi: sw=4 ts=4:
/*
 ---------------------------------------------------------------------------
   Copyright (c) 2013-2015 AT&T Intellectual Property

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at:

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
 ---------------------------------------------------------------------------
*/

/*

	Mnemonic:	globals
	Abstract:	Package level initialisation for the managers package, and
				the World struct that replaces the original singletons
				(engine/settings/logger) a mote's stack used to reach for
				as process globals (spec §9). World is constructed once by
				RunSimulation and threaded by reference into every
				component constructor; nothing in this package keeps
				mutable package-level state.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package managers

import (
	"os"

	"github.com/att/gopkgs/bleater"
	"github.com/att/sixtisch-sim/gizmos"
)

var (
	sheep *bleater.Bleater // root diagnostic bleater for this run
)

func init() {
	sheep = bleater.Mk_bleater(1, os.Stderr)
	sheep.Set_prefix("sixtisch")
	sheep.Add_child(gizmos.Get_sheep())
}

/*
	World is the explicit simulation context: everything a component
	needs that used to be a singleton. One World exists per call to
	RunSimulation and is discarded when that call returns.
*/
type World struct {
	Settings *Settings
	Log      *Sink
	Rng      *gizmos.Rng
	Engine   *Engine
	Topology Matrix

	Motes   []*Mote // dense arena, id == index; Motes[0] is the DAG root
	macToID map[gizmos.Mac]int
	ipToID  map[gizmos.Ip]int
}

// moteIDForMac is the reverse lookup TSCH/RPL need to walk the parent chain by MAC alone.
func (w *World) moteIDForMac(mac gizmos.Mac) (int, bool) {
	id, ok := w.macToID[mac]
	return id, ok
}

// moteIDForIp is the reverse lookup App uses to attribute an arriving DATA packet's source.
func (w *World) moteIDForIp(ip gizmos.Ip) (int, bool) {
	id, ok := w.ipToID[ip]
	return id, ok
}

func Set_bleat_level(v uint) {
	sheep.Set_level(v)
}
