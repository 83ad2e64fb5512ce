package canvas

import (
	"sort"

	"idcard/internal/render"
)

// PatchOp is the kind of change between two scenes.
type PatchOp string

const (
	OpRemove     PatchOp = "remove"
	OpInsert     PatchOp = "insert"
	OpUpdate     PatchOp = "update"
	OpMove       PatchOp = "move"
	OpBackground PatchOp = "background"
	OpFrame      PatchOp = "frame"
)

// Patch is one retained-mode change. Index is the node's position in the next scene
// for insert and move patches.
type Patch struct {
	Op    PatchOp `json:"op"`
	ID    string  `json:"id,omitempty"`
	Index int     `json:"index"`
	Node  *Node   `json:"node,omitempty"`
}

// Diff returns the patches that turn prev into next: frame and background changes first,
// then removals, updates, and finally inserts and moves in ascending target index.
// Nodes that keep their relative order are not moved.
func Diff(prev, next *Scene) []Patch {
	if prev == nil {
		prev = &Scene{}
	}
	if next == nil {
		next = &Scene{}
	}

	var patches []Patch
	if prev.Width != next.Width || prev.Height != next.Height || prev.Scale != next.Scale {
		patches = append(patches, Patch{Op: OpFrame})
	}
	if !samePaint(prev.Background, next.Background) {
		patches = append(patches, Patch{Op: OpBackground})
	}

	nextIndex := make(map[string]int, len(next.Nodes))
	for i, n := range next.Nodes {
		nextIndex[n.ID] = i
	}
	prevByID := make(map[string]Node, len(prev.Nodes))

	// Positions in next of surviving nodes, in prev order.
	var kept []int
	for _, n := range prev.Nodes {
		prevByID[n.ID] = n
		j, ok := nextIndex[n.ID]
		if !ok {
			patches = append(patches, Patch{Op: OpRemove, ID: n.ID})
			continue
		}
		kept = append(kept, j)
	}

	for i, n := range next.Nodes {
		if old, ok := prevByID[n.ID]; ok && !old.Equal(n) {
			node := n
			patches = append(patches, Patch{Op: OpUpdate, ID: n.ID, Index: i, Node: &node})
		}
	}

	stable := make(map[int]bool, len(kept))
	for _, j := range longestIncreasing(kept) {
		stable[j] = true
	}

	var placed []Patch
	for i, n := range next.Nodes {
		node := n
		if _, ok := prevByID[n.ID]; !ok {
			placed = append(placed, Patch{Op: OpInsert, ID: n.ID, Index: i, Node: &node})
			continue
		}
		if !stable[i] {
			placed = append(placed, Patch{Op: OpMove, ID: n.ID, Index: i})
		}
	}
	return append(patches, placed...)
}

// Apply replays patches onto prev and returns the resulting node list.
// Frame and background patches carry no payload; callers read those fields from the next scene.
func Apply(prev []Node, patches []Patch) []Node {
	removed := map[string]bool{}
	updated := map[string]Node{}
	moved := map[string]bool{}
	var placed []Patch
	for _, p := range patches {
		switch p.Op {
		case OpRemove:
			removed[p.ID] = true
		case OpUpdate:
			updated[p.ID] = *p.Node
		case OpMove:
			moved[p.ID] = true
			placed = append(placed, p)
		case OpInsert:
			placed = append(placed, p)
		}
	}

	byID := map[string]Node{}
	out := make([]Node, 0, len(prev))
	for _, n := range prev {
		if removed[n.ID] {
			continue
		}
		if u, ok := updated[n.ID]; ok {
			n = u
		}
		byID[n.ID] = n
		if !moved[n.ID] {
			out = append(out, n)
		}
	}

	sort.SliceStable(placed, func(i, j int) bool { return placed[i].Index < placed[j].Index })
	for _, p := range placed {
		n := byID[p.ID]
		if p.Op == OpInsert {
			n = *p.Node
		}
		idx := min(p.Index, len(out))
		out = append(out, Node{})
		copy(out[idx+1:], out[idx:])
		out[idx] = n
	}
	return out
}

func samePaint(a, b render.Paint) bool {
	return a.Kind == b.Kind && a.CSS == b.CSS && a.Color == b.Color && a.ImageURL == b.ImageURL
}

// longestIncreasing returns one longest strictly increasing subsequence of xs.
func longestIncreasing(xs []int) []int {
	if len(xs) == 0 {
		return nil
	}
	// tails[k] is the index in xs of the smallest tail of an increasing run of length k+1.
	tails := make([]int, 0, len(xs))
	parent := make([]int, len(xs))
	for i, x := range xs {
		k := sort.Search(len(tails), func(k int) bool { return xs[tails[k]] >= x })
		if k > 0 {
			parent[i] = tails[k-1]
		} else {
			parent[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}

	out := make([]int, len(tails))
	for i, k := tails[len(tails)-1], len(tails)-1; k >= 0; i, k = parent[i], k-1 {
		out[k] = xs[i]
	}
	return out
}
