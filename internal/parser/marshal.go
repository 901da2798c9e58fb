package parser

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/params"
)

// FilterTag is the name of the wrapper element written by Marshal.
const FilterTag = "filter"

// Marshal writes cond back into the saved filter form, wrapped in a <filter>
// element. Parsing the result with the same options yields an equal tree.
// Parameters that only repeat what the clause text implies are not written.
func Marshal(cond condition.Condition, opts ...Option) (*etree.Element, error) {
	o := newOptions(opts)
	filter := etree.NewElement(FilterTag)
	if err := marshalNode(filter, cond, o.resolver); err != nil {
		return nil, err
	}
	return filter, nil
}

// MarshalString renders cond as an indented filter document.
func MarshalString(cond condition.Condition, opts ...Option) (string, error) {
	filter, err := Marshal(cond, opts...)
	if err != nil {
		return "", err
	}
	doc := etree.NewDocument()
	doc.SetRoot(filter)
	doc.Indent(2)
	return doc.WriteToString()
}

func marshalNode(parent *etree.Element, cond condition.Condition, resolver *params.TypeResolver) error {
	switch node := cond.(type) {
	case *condition.LogicalCondition:
		el := parent.CreateElement(node.Operation.Tag())
		writeLabels(el, node.Name, node.Labels)
		for _, child := range node.Conditions {
			if err := marshalNode(el, child, resolver); err != nil {
				return err
			}
		}
		return nil
	case *condition.Clause:
		return marshalClause(parent, node, resolver)
	case nil:
		return fmt.Errorf("cannot marshal a nil condition")
	default:
		return fmt.Errorf("unsupported condition type %T", cond)
	}
}

func marshalClause(parent *etree.Element, clause *condition.Clause, resolver *params.TypeResolver) error {
	el := parent.CreateElement(clauseTag)
	writeLabels(el, clause.Name, clause.Labels)
	if clause.OperatorType != "" {
		el.CreateAttr("operatorType", clause.OperatorType)
	}
	if clause.ValueType != "" {
		el.CreateAttr("type", clause.ValueType)
	}
	if clause.Unary {
		el.CreateAttr("unary", "true")
	}
	el.SetText(clause.Text)

	implied := make(map[string]struct{})
	for _, name := range params.Names(clause.Text) {
		implied[name] = struct{}{}
	}

	for _, p := range clause.Parameters.All() {
		_, inText := implied[p.Name]
		if inText && p.JavaClass == nil && p.DeclaredClass == "" && p.Value == "" {
			continue
		}
		className, err := paramClass(resolver, p)
		if err != nil {
			return fmt.Errorf("clause %s: %w", clause.ID, err)
		}
		paramEl := el.CreateElement(paramTag)
		paramEl.CreateAttr("name", p.Name)
		if className != "" {
			paramEl.CreateAttr("javaClass", className)
		}
		if p.Value != "" {
			paramEl.SetText(p.Value)
		}
	}

	if clause.Join != "" {
		el.CreateElement(joinTag).SetText(clause.Join)
	}
	return nil
}

// writeLabels writes the naming attributes of a node. Trees built in code
// without labels are written under their display name.
func writeLabels(el *etree.Element, name string, labels condition.Labels) {
	if labels == (condition.Labels{}) {
		labels.Name = name
	}
	for _, attr := range []struct{ key, value string }{
		{"name", labels.Name},
		{"caption", labels.Caption},
		{"locCaption", labels.LocCaption},
	} {
		if attr.value != "" {
			el.CreateAttr(attr.key, attr.value)
		}
	}
}

// paramClass returns the javaClass to write for p. The class declared in the
// source document wins, so unresolved classes survive a round trip.
func paramClass(resolver *params.TypeResolver, p condition.ParameterInfo) (string, error) {
	if p.DeclaredClass != "" {
		return p.DeclaredClass, nil
	}
	if p.JavaClass == nil {
		return "", nil
	}
	if className := resolver.ClassName(p.JavaClass); className != "" {
		return className, nil
	}
	return "", fmt.Errorf("no class name known for parameter %s of type %s", p.Name, p.JavaClass)
}
