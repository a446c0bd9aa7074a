// vi: sw=4 ts=4:

/*

	Mnemonic:	route
	Abstract:	Source-route reconstruction over the DAG the root assembles
				from DAO reports. Adapted from gizmos/switch.go's path
				finding: the teacher walked a Prev/Plink chain left behind
				by Dijkstra to build a switch-to-switch path; a 6TiSCH DAG
				is already a tree (one parent per child, by construction of
				RPL), so the "shortest path search" collapses to a walk of
				the Prev chain alone, but the backtrack shape survives
				unchanged.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package gizmos

import "fmt"

/*
	ParentTree is the root's view of the DAG: for every mote id it has
	heard about via a DAO, the id of that mote's reporting parent.
*/
type ParentTree struct {
	parentOf map[int]int
}

func Mk_parent_tree() *ParentTree {
	return &ParentTree{parentOf: make(map[int]int)}
}

// Record stores (or updates) the parent a child reported in its most recent DAO.
func (t *ParentTree) Record(child, parent int) {
	t.parentOf[child] = parent
}

// ErrNoRoute is returned by PathTo when the chain from dest up to root is broken.
var ErrNoRoute = fmt.Errorf("no source route: broken parent chain")

/*
	PathTo walks the Prev chain from dest back to root (id 0), the same
	backtrack switch.go's Path_to performed from a destination switch back
	to the source via each node's Prev pointer, and returns the hop list
	root-to-dest suitable for a downward source-routed packet's Net.SourceRoute.
	Detects a cycle (a routing loop the DAOs should never have let through)
	and reports it as ErrNoRoute rather than looping forever.
*/
func (t *ParentTree) PathTo(dest int, macOf func(id int) Mac) ([]Mac, error) {
	if dest == 0 {
		return nil, nil
	}
	seen := map[int]bool{dest: true}
	chain := []int{dest}
	cur := dest
	for cur != 0 {
		parent, ok := t.parentOf[cur]
		if !ok {
			return nil, ErrNoRoute
		}
		if seen[parent] {
			return nil, ErrNoRoute
		}
		seen[parent] = true
		chain = append(chain, parent)
		cur = parent
	}
	// chain is dest..root; the source route travels root..dest.
	hops := make([]Mac, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		hops = append(hops, macOf(chain[i]))
	}
	return hops, nil
}
