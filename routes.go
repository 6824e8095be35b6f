package fogsim

// routes.go provides functions to create and access routes through the device tree.
//
// The general approach is to convert the topology into the data structures used by a
// graph package that has built-in path discovery algorithms.  Each link is weighted by
// its latency.  In a tree the path between two devices is unique, so the shortest path
// is that path; the graph package gives it to us along with a tree of paths from the
// source to every device, which we cache so later requests from the same source are
// a lookup.  Failing a tree rooted at the source we look for one rooted at the
// destination, whose path is by symmetry the reverse of the one we want.

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Hop is one link traversal on a route
type Hop struct {
	From      int
	To        int
	Link      int // id of the child device whose uplink is traversed
	Dir       Direction
	Latency   float64
	Bandwidth float64
}

// routeCache holds the graph form of a topology and the shortest-path trees computed on it
type routeCache struct {
	topo     *Topology
	gNodes   map[int]simple.Node
	connGrph graph.Graph
	cachedSP map[int]path.Shortest
	routes   map[rtEndpts][]Hop
}

// rtEndpts holds the IDs of the starting and ending points of a route
type rtEndpts struct {
	srcID, dstID int
}

// buildRouteCache returns the graph.Graph representation of the topology, wrapped
// with empty caches
func buildRouteCache(topo *Topology) *routeCache {
	rc := new(routeCache)
	rc.topo = topo
	rc.gNodes = make(map[int]simple.Node)
	rc.cachedSP = make(map[int]path.Shortest)
	rc.routes = make(map[rtEndpts][]Hop)

	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, dev := range topo.devices {
		rc.gNodes[dev.ID] = simple.Node(dev.ID)
		connGraph.AddNode(rc.gNodes[dev.ID])
	}
	for _, dev := range topo.devices {
		if dev.ParentID == NoParent {
			continue
		}
		weightedEdge := simple.WeightedEdge{F: rc.gNodes[dev.ID], T: rc.gNodes[dev.ParentID], W: dev.UplinkLatency}
		connGraph.SetWeightedEdge(weightedEdge)
	}
	rc.connGrph = connGraph
	return rc
}

// getSPTree returns the shortest path tree rooted in 'from'.  If the tree is found in
// the cache it is returned, if not it is computed, saved, and returned.
func (rc *routeCache) getSPTree(from int) path.Shortest {
	spTree, present := rc.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rc.gNodes[from], rc.connGrph)
	rc.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts the device ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// routeFrom returns the sequence of device ids from srcID to dstID, inclusive
func (rc *routeCache) routeFrom(srcID, dstID int) []int {
	if spTree, present := rc.cachedSP[srcID]; present {
		nodeSeq, _ := spTree.To(int64(dstID))
		return convertNodeSeq(nodeSeq)
	}

	if spTree, present := rc.cachedSP[dstID]; present {
		revNodeSeq, _ := spTree.To(int64(srcID))
		revRoute := convertNodeSeq(revNodeSeq)
		lenR := len(revRoute)
		route := make([]int, 0, lenR)
		for idx := 0; idx < lenR; idx++ {
			route = append(route, revRoute[lenR-idx-1])
		}
		return route
	}

	spTree := rc.getSPTree(srcID)
	nodeSeq, _ := spTree.To(int64(dstID))
	return convertNodeSeq(nodeSeq)
}

// findRoute expands the device sequence between srcID and dstID into hops that
// carry the direction, latency and bandwidth of each link crossed
func (rc *routeCache) findRoute(srcID, dstID int) []Hop {
	endpoints := rtEndpts{srcID: srcID, dstID: dstID}
	if rt, found := rc.routes[endpoints]; found {
		return rt
	}

	route := rc.routeFrom(srcID, dstID)
	hops := make([]Hop, 0, len(route))
	for idx := 1; idx < len(route); idx++ {
		from := route[idx-1]
		to := route[idx]
		fromDev := rc.topo.byID[from]
		toDev := rc.topo.byID[to]

		// the link belongs to whichever end is the child
		if fromDev.ParentID == to {
			hops = append(hops, Hop{From: from, To: to, Link: from, Dir: Up,
				Latency: fromDev.UplinkLatency, Bandwidth: fromDev.UplinkBw})
		} else {
			hops = append(hops, Hop{From: from, To: to, Link: to, Dir: Down,
				Latency: toDev.UplinkLatency, Bandwidth: toDev.DownlinkBw})
		}
	}
	rc.routes[endpoints] = hops
	return hops
}

// Route lists the hops from device a to device b; it is empty when a == b
func (topo *Topology) Route(a, b int) []Hop {
	if a == b {
		return []Hop{}
	}
	return topo.routes.findRoute(a, b)
}

// ShowPath returns a string that lists the names of all the devices on the route from a to b
func (topo *Topology) ShowPath(a, b int) string {
	names := []string{topo.byID[a].Name}
	for _, hop := range topo.Route(a, b) {
		names = append(names, topo.byID[hop.To].Name)
	}
	return strings.Join(names, ",")
}

func (hop Hop) String() string {
	return fmt.Sprintf("%d->%d(%s %gms %g)", hop.From, hop.To, hop.Dir, hop.Latency, hop.Bandwidth)
}
