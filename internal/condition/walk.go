package condition

// Walk visits c and its descendants depth-first in document order.
// Returning false from fn skips the children of the visited node.
func Walk(c Condition, fn func(c Condition, depth int) bool) {
	walk(c, 0, fn)
}

func walk(c Condition, depth int, fn func(Condition, int) bool) {
	if c == nil {
		return
	}
	if !fn(c, depth) {
		return
	}
	for _, child := range c.Children() {
		walk(child, depth+1, fn)
	}
}

// Clauses returns every clause of the tree in document order.
func Clauses(c Condition) []*Clause {
	var out []*Clause
	Walk(c, func(node Condition, _ int) bool {
		if clause, ok := node.(*Clause); ok {
			out = append(out, clause)
		}
		return true
	})
	return out
}

// CollectParameters returns the parameters of every clause of the tree,
// keyed by name and owning clause.
func CollectParameters(c Condition) *ParameterSet {
	set := &ParameterSet{}
	for _, clause := range Clauses(c) {
		for _, p := range clause.Parameters.All() {
			set.Add(p)
		}
	}
	return set
}

// Depth returns the number of levels of the tree; a single clause has depth 1.
func Depth(c Condition) int {
	max := 0
	Walk(c, func(_ Condition, depth int) bool {
		if depth+1 > max {
			max = depth + 1
		}
		return true
	})
	return max
}
