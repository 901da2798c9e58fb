package condition

// Equal reports whether two trees have the same shape and the same values:
// node IDs, names and labels, clause texts, joins, operator and value types, and
// parameter sets compared in order. Pointer identity is never compared.
func Equal(a, b Condition) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Clause:
		y, ok := b.(*Clause)
		return ok && clauseEqual(x, y)
	case *LogicalCondition:
		y, ok := b.(*LogicalCondition)
		if !ok {
			return false
		}
		if x.ID != y.ID || x.Name != y.Name || x.Labels != y.Labels || x.Operation != y.Operation {
			return false
		}
		if len(x.Conditions) != len(y.Conditions) {
			return false
		}
		for i := range x.Conditions {
			if !Equal(x.Conditions[i], y.Conditions[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func clauseEqual(x, y *Clause) bool {
	if x.ID != y.ID || x.Name != y.Name || x.Labels != y.Labels || x.Text != y.Text || x.Join != y.Join {
		return false
	}
	if x.OperatorType != y.OperatorType || x.ValueType != y.ValueType || x.Unary != y.Unary {
		return false
	}
	if len(x.Properties) != len(y.Properties) {
		return false
	}
	for i := range x.Properties {
		if x.Properties[i] != y.Properties[i] {
			return false
		}
	}
	px, py := x.Parameters.All(), y.Parameters.All()
	if len(px) != len(py) {
		return false
	}
	for i := range px {
		if !parameterEqual(px[i], py[i]) {
			return false
		}
	}
	return true
}

// parameterEqual ignores the declared class spelling once the class resolved.
func parameterEqual(x, y ParameterInfo) bool {
	if x.JavaClass != nil && x.JavaClass == y.JavaClass {
		x.DeclaredClass, y.DeclaredClass = "", ""
	}
	return x == y
}
