package graph

import "github.com/Suganthan96/NCP/internal/domain"

// Index provides read-only adjacency lookups over a node/edge
// snapshot. It owns nothing: callers rebuild it whenever the editor
// supplies a new graph.
type Index struct {
	nodes map[string]domain.WorkflowNode
	order []string
	in    map[string][]string
	out   map[string][]string
}

// NewIndex builds adjacency maps in O(N+E). Node order is preserved so
// traversal output is deterministic for a fixed graph.
func NewIndex(nodes []domain.WorkflowNode, edges []domain.Edge) *Index {
	idx := &Index{
		nodes: make(map[string]domain.WorkflowNode, len(nodes)),
		in:    make(map[string][]string),
		out:   make(map[string][]string),
	}
	for _, n := range nodes {
		if _, dup := idx.nodes[n.ID]; !dup {
			idx.order = append(idx.order, n.ID)
		}
		idx.nodes[n.ID] = n
	}
	for _, e := range edges {
		idx.out[e.Source] = append(idx.out[e.Source], e.Target)
		idx.in[e.Target] = append(idx.in[e.Target], e.Source)
	}
	return idx
}

// Node returns the node for id. An absent id yields ok=false.
func (idx *Index) Node(id string) (domain.WorkflowNode, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}

// Nodes returns all nodes in input order.
func (idx *Index) Nodes() []domain.WorkflowNode {
	out := make([]domain.WorkflowNode, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.nodes[id])
	}
	return out
}

// ParentsOf returns the sources of edges whose target is id. An absent
// id simply yields nil.
func (idx *Index) ParentsOf(id string) []string { return idx.in[id] }

// ChildrenOf returns the targets of edges whose source is id.
func (idx *Index) ChildrenOf(id string) []string { return idx.out[id] }

// HasEdge reports whether a source->target edge exists.
func (idx *Index) HasEdge(source, target string) bool {
	for _, t := range idx.out[source] {
		if t == target {
			return true
		}
	}
	return false
}

// Ancestors walks parent edges breadth-first from id, excluding id
// itself. The visited set guarantees termination under cycles.
func (idx *Index) Ancestors(id string) []domain.WorkflowNode {
	return idx.walk(id, idx.ParentsOf)
}

// Descendants walks child edges breadth-first from id, excluding id
// itself.
func (idx *Index) Descendants(id string) []domain.WorkflowNode {
	return idx.walk(id, idx.ChildrenOf)
}

func (idx *Index) walk(start string, next func(string) []string) []domain.WorkflowNode {
	visited := map[string]bool{start: true}
	queue := append([]string(nil), next(start)...)
	var out []domain.WorkflowNode
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if n, ok := idx.nodes[id]; ok {
			out = append(out, n)
		}
		queue = append(queue, next(id)...)
	}
	return out
}
