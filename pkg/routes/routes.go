// Package routes turns upstream route updates into drawable ghost paths.
package routes

import (
	"fmt"
	"math"

	"github.com/sudorandom/ropt-live/pkg/model"
)

const OptimalID = "optimal"

type Path struct {
	ID    string
	Nodes []string
	Best  bool
}

// CandidateID is the positional id of the i-th candidate path.
func CandidateID(i int) string {
	return fmt.Sprintf("cand-%d", i)
}

// BuildPaths lists the optimal path first (when non-empty) followed by every
// candidate in order.
func BuildPaths(u *model.RouteUpdate) []Path {
	if u == nil {
		return nil
	}
	paths := make([]Path, 0, len(u.Candidates)+1)
	if len(u.OptimalPath) > 0 {
		paths = append(paths, Path{ID: OptimalID, Nodes: u.OptimalPath, Best: true})
	}
	for i, c := range u.Candidates {
		paths = append(paths, Path{ID: CandidateID(i), Nodes: c})
	}
	return paths
}

// Resolve looks up node positions, dropping ids missing from idx.
func Resolve(nodes []string, idx model.NodeIndex) []model.Point {
	out := make([]model.Point, 0, len(nodes))
	for _, id := range nodes {
		if p, ok := idx[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Cost sums the world distance of every consecutive pair of nodes. A hop with
// an unknown endpoint contributes nothing.
func Cost(nodes []string, idx model.NodeIndex) float64 {
	var cost float64
	for i := 1; i < len(nodes); i++ {
		a, okA := idx[nodes[i-1]]
		b, okB := idx[nodes[i]]
		if !okA || !okB {
			continue
		}
		cost += math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return cost
}
