package visualize

import "spanscope/internal/models"

// Node is one entry of the display order: the position of a span in the input slice and how
// deeply it nests under its ancestors.
type Node struct {
	Index int `json:"index"`
	Depth int `json:"depth"`
}

// Order returns every span exactly once, depth-first, with children following their parent.
//
// Parent references are not trusted. A span whose parent is missing from the trace, or
// that names itself, is treated as a root. For duplicate span IDs the last occurrence
// owns the children. Spans only reachable through a cycle are emitted as roots after
// everything else, in input order.
func Order(spans []models.Span) []Node {
	if len(spans) == 0 {
		return []Node{}
	}

	byID := make(map[string]int, len(spans))
	for i, s := range spans {
		if s.SpanID != "" {
			byID[s.SpanID] = i
		}
	}

	children := make(map[string][]int)
	var roots []int
	for i, s := range spans {
		if isOrphan(s, byID) {
			roots = append(roots, i)
			continue
		}
		children[s.ParentSpanID] = append(children[s.ParentSpanID], i)
	}

	order := make([]Node, 0, len(spans))
	visited := make([]bool, len(spans))

	var walk func(i, depth int)
	walk = func(i, depth int) {
		if visited[i] {
			return
		}
		visited[i] = true
		order = append(order, Node{Index: i, Depth: depth})

		id := spans[i].SpanID
		if id == "" || byID[id] != i {
			return
		}
		for _, c := range children[id] {
			walk(c, depth+1)
		}
	}

	for _, r := range roots {
		walk(r, 0)
	}
	for i := range spans {
		walk(i, 0)
	}

	return order
}

func isOrphan(s models.Span, byID map[string]int) bool {
	if s.IsRoot() || s.ParentSpanID == s.SpanID {
		return true
	}
	_, ok := byID[s.ParentSpanID]
	return !ok
}
