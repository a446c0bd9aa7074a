// vi: sw=4 ts=4:

/*

	Mnemonic:	globals.go
	Abstract:	package level initialisation and constants for the gizmos package
	Date:		31 July 2026
	Author:		E. Scott Daniels

	Mods:		Adapted for the 6TiSCH simulator kernel: gizmos now holds the
				addressing, packet, cell and small-graph value types the rest
				of the simulator builds on rather than SDN reservation objects.
*/

package gizmos

import (
	"os"

	"github.com/att/gopkgs/bleater"
)

var (
	obj_sheep *bleater.Bleater // sheep that gizmo objects bleat through
)

/*
	Initialisation for the package; run once automatically at startup.
*/
func init() {
	obj_sheep = bleater.Mk_bleater(0, os.Stderr)
	obj_sheep.Set_prefix("gizmos")
}

/*
	Returns the package's sheep so that main can attach it to the
	root bleater and thus affect the volume of bleats from this package.
*/
func Get_sheep() *bleater.Bleater {
	return obj_sheep
}

/*
	Provides the external world with a way to adjust the bleat level for gizmos.
*/
func Set_bleat_level(v uint) {
	obj_sheep.Set_level(v)
}
