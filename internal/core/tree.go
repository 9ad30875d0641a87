package core

import (
	"iter"

	"metsicore/pkg/domain"
)

// BranchStatus describes the lifecycle of one trajectory-tree node.
type BranchStatus string

// Node statuses. A node is expandable while on the frontier, expanded once
// its children are committed, complete as a leaf at the horizon, and failed
// when growth failed or the branch exhausted.
const (
	StatusExpandable BranchStatus = "expandable"
	StatusExpanded   BranchStatus = "expanded"
	StatusComplete   BranchStatus = "complete"
	StatusFailed     BranchStatus = "failed"
)

// LabelNoAction labels the always-present "no management action" edge.
const LabelNoAction = "no_action"

// Edge points from a node to one child, labelled with the operation applied.
type Edge struct {
	Child int    `json:"child"`
	Label string `json:"label"`
}

// Node is one stand state in the trajectory tree. Parent is -1 for the root;
// Label is the operation on the edge from the parent.
type Node struct {
	ID       int               `json:"id"`
	Parent   int               `json:"parent"`
	Label    string            `json:"label,omitempty"`
	State    domain.StandState `json:"state"`
	Children []Edge            `json:"children,omitempty"`
	Status   BranchStatus      `json:"status"`
	Failure  string            `json:"failure,omitempty"`
}

func cloneNode(n Node) Node {
	cp := n
	cp.State = n.State.Clone()
	cp.Children = append([]Edge(nil), n.Children...)
	return cp
}

// Tree is the trajectory tree: an arena of nodes addressed by index, with
// child lists preserving declaration order. It is append-only during a run
// and read-only after the run completes.
type Tree struct {
	horizon int
	nodes   []Node
}

// newTree seeds a tree with the initial stand state as its root.
func newTree(initial domain.StandState, horizon int) *Tree {
	root := Node{
		ID:     0,
		Parent: -1,
		State:  initial.Clone(),
		Status: StatusExpandable,
	}
	return &Tree{horizon: horizon, nodes: []Node{root}}
}

// Root returns the root node index.
func (t *Tree) Root() int { return 0 }

// Horizon returns the number of periods the tree was built for.
func (t *Tree) Horizon() int { return t.horizon }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns an independent copy of the node at id.
func (t *Tree) Node(id int) (Node, bool) {
	if id < 0 || id >= len(t.nodes) {
		return Node{}, false
	}
	return cloneNode(t.nodes[id]), true
}

func (t *Tree) addChild(parent int, label string, state domain.StandState) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		ID:     id,
		Parent: parent,
		Label:  label,
		State:  state,
		Status: StatusExpandable,
	})
	t.nodes[parent].Children = append(t.nodes[parent].Children, Edge{Child: id, Label: label})
	return id
}

func (t *Tree) markExpanded(id int) {
	t.nodes[id].Status = StatusExpanded
}

func (t *Tree) markComplete(id int) {
	t.nodes[id].Status = StatusComplete
}

func (t *Tree) markFailed(id int, reason string) {
	t.nodes[id].Status = StatusFailed
	t.nodes[id].Failure = reason
}

// Leaves returns the indexes of all nodes without children, in arena order.
func (t *Tree) Leaves() []int {
	var out []int
	for i := range t.nodes {
		if len(t.nodes[i].Children) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// FailedBranches returns the indexes of nodes whose branch failed.
func (t *Tree) FailedBranches() []int {
	var out []int
	for i := range t.nodes {
		if t.nodes[i].Status == StatusFailed {
			out = append(out, i)
		}
	}
	return out
}

// Depth returns the edge count from the root to node id.
func (t *Tree) Depth(id int) int {
	depth := 0
	for id > 0 {
		id = t.nodes[id].Parent
		depth++
	}
	return depth
}

// Step is one entry of a trajectory: the stand state reached and the
// operation label on the edge that produced it (empty for the root).
type Step struct {
	Label string            `json:"label,omitempty"`
	State domain.StandState `json:"state"`
}

// Trajectory is one root-to-leaf path through the tree.
type Trajectory struct {
	Leaf   int          `json:"leaf"`
	Status BranchStatus `json:"status"`
	Steps  []Step       `json:"steps"`
}

// Trajectories enumerates all root-to-leaf paths lazily, in depth-first
// child order, so downstream consumers reproduce results deterministically.
// The sequence is finite and restartable: each range walks the tree afresh.
func (t *Tree) Trajectories() iter.Seq[Trajectory] {
	return func(yield func(Trajectory) bool) {
		steps := make([]Step, 0, t.horizon+1)
		var walk func(id int) bool
		walk = func(id int) bool {
			node := &t.nodes[id]
			steps = append(steps, Step{Label: node.Label, State: node.State.Clone()})
			defer func() { steps = steps[:len(steps)-1] }()
			if len(node.Children) == 0 {
				trajectory := Trajectory{
					Leaf:   id,
					Status: node.Status,
					Steps:  append([]Step(nil), steps...),
				}
				return yield(trajectory)
			}
			for _, edge := range node.Children {
				if !walk(edge.Child) {
					return false
				}
			}
			return true
		}
		walk(0)
	}
}

// Snapshot is the serializable form of a tree.
type Snapshot struct {
	Horizon int    `json:"horizon"`
	Nodes   []Node `json:"nodes"`
}

// Snapshot returns an independent serializable copy of the tree.
func (t *Tree) Snapshot() Snapshot {
	nodes := make([]Node, len(t.nodes))
	for i := range t.nodes {
		nodes[i] = cloneNode(t.nodes[i])
	}
	return Snapshot{Horizon: t.horizon, Nodes: nodes}
}

// TreeFromSnapshot rebuilds a tree from its serialized form.
func TreeFromSnapshot(snapshot Snapshot) *Tree {
	nodes := make([]Node, len(snapshot.Nodes))
	for i := range snapshot.Nodes {
		nodes[i] = cloneNode(snapshot.Nodes[i])
	}
	return &Tree{horizon: snapshot.Horizon, nodes: nodes}
}
