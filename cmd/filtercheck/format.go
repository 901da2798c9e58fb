package main

import (
	"fmt"
	"io"
	"strings"

	condfilter "github.com/nlstn/go-condfilter"
)

func writeTree(w io.Writer, cond condfilter.Condition) error {
	var err error
	condfilter.Walk(cond, func(c condfilter.Condition, depth int) bool {
		indent := strings.Repeat("  ", depth)
		switch node := c.(type) {
		case *condfilter.LogicalCondition:
			_, err = fmt.Fprintf(w, "%s[%s] %s%s\n", indent, node.ID, node.Operation, label(node.Name))
		case *condfilter.Clause:
			_, err = fmt.Fprintf(w, "%s[%s] %s%s\n", indent, node.ID, node.Text, label(node.Name))
			if err == nil && node.Join != "" {
				_, err = fmt.Fprintf(w, "%s    join: %s\n", indent, node.Join)
			}
			for _, p := range node.Parameters.All() {
				if err != nil {
					break
				}
				_, err = fmt.Fprintf(w, "%s    :%s%s\n", indent, p.Name, describeParameter(p))
			}
		}
		return err == nil
	})
	return err
}

func label(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", name)
}

func describeParameter(p condfilter.ParameterInfo) string {
	var parts []string
	if p.JavaClass != nil {
		parts = append(parts, p.JavaClass.String())
	}
	if p.CaseInsensitive {
		parts = append(parts, "case-insensitive")
	}
	if p.Value != "" {
		parts = append(parts, fmt.Sprintf("default %q", p.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, ", ")
}

func writeScope(w io.Writer, scope condfilter.QueryScope) error {
	for _, join := range scope.Joins {
		if _, err := fmt.Fprintln(w, join); err != nil {
			return err
		}
	}
	where := scope.Condition
	if where == "" {
		where = "(no condition)"
	}
	if _, err := fmt.Fprintf(w, "WHERE %s\n", where); err != nil {
		return err
	}
	for i, arg := range scope.Args {
		if _, err := fmt.Fprintf(w, "  $%d = %v\n", i+1, arg); err != nil {
			return err
		}
	}
	return nil
}

func writeFilters(w io.Writer, filters []*condfilter.SavedFilter) error {
	for _, f := range filters {
		status := "ok"
		if f.Err != nil {
			status = "invalid: " + f.Err.Error()
		}
		owner := f.Username
		if owner == "" {
			owner = "shared"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Name, owner, status); err != nil {
			return err
		}
	}
	return nil
}
