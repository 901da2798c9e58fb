// Package condition defines the parsed form of a saved filter: a tree of
// logical groups (AND/OR) whose leaves are query-fragment clauses with named
// bind parameters.
//
// A tree is built once by the parser and then only read. Nothing in this
// package mutates a tree after construction; callers that need a different
// tree parse or build a new one.
package condition

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-condfilter/internal/metadata"
)

// Condition is a node of a condition tree. The set of implementations is
// closed: *Clause and *LogicalCondition.
type Condition interface {
	// DisplayName returns the caption of the node, or its technical name when no caption is set.
	DisplayName() string
	// NodeID returns the structural position of the node ("0", "0.2", ...).
	NodeID() string
	// Children returns the child conditions in document order. Always empty for clauses.
	Children() []Condition

	conditionNode()
}

// LogicalOp is the boolean combinator of a logical group.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// ParseLogicalOp maps an element name such as "and" or "OR" to a combinator.
func ParseLogicalOp(s string) (LogicalOp, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(OpAnd):
		return OpAnd, nil
	case string(OpOr):
		return OpOr, nil
	default:
		return "", fmt.Errorf("unknown logical operation %q", s)
	}
}

// Tag returns the element name the combinator is persisted as.
func (op LogicalOp) Tag() string {
	return strings.ToLower(string(op))
}

// Labels holds the naming attributes of a node as written in the document.
type Labels struct {
	Name       string
	Caption    string
	LocCaption string
}

// Display returns the localized caption, then the caption, then the name.
func (l Labels) Display() string {
	for _, v := range []string{l.LocCaption, l.Caption, l.Name} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// PropertyRef is a property path referenced by a clause as {E}.path.
type PropertyRef struct {
	Path     string
	Kind     metadata.PropertyKind
	Resolved bool
}

// Clause is a leaf condition: a query fragment and the parameters it binds.
type Clause struct {
	ID           string
	Name         string
	Labels       Labels
	Text         string
	Join         string
	OperatorType string
	ValueType    string
	// Unary marks clauses whose declared parameter is not part of Text
	// (e.g. "not empty" checks driven by a boolean parameter).
	Unary      bool
	Parameters *ParameterSet
	Properties []PropertyRef
}

// DisplayName returns the clause name.
func (c *Clause) DisplayName() string { return c.Name }

// NodeID returns the clause position in the tree.
func (c *Clause) NodeID() string { return c.ID }

// Children returns nil; clauses are leaves.
func (c *Clause) Children() []Condition { return nil }

func (c *Clause) conditionNode() {}

// LogicalCondition combines its children with a single boolean operation.
type LogicalCondition struct {
	ID         string
	Name       string
	Labels     Labels
	Operation  LogicalOp
	Conditions []Condition
}

// DisplayName returns the group name.
func (l *LogicalCondition) DisplayName() string { return l.Name }

// NodeID returns the group position in the tree.
func (l *LogicalCondition) NodeID() string { return l.ID }

// Children returns the grouped conditions in document order.
func (l *LogicalCondition) Children() []Condition { return l.Conditions }

func (l *LogicalCondition) conditionNode() {}

// IsVacuous reports whether the group has no children and therefore constrains nothing.
func (l *LogicalCondition) IsVacuous() bool { return len(l.Conditions) == 0 }

// ChildID returns the ID of the i-th child of the node with the given ID.
func ChildID(parentID string, i int) string {
	if parentID == "" {
		return fmt.Sprintf("%d", i)
	}
	return fmt.Sprintf("%s.%d", parentID, i)
}
