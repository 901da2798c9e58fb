package parser

import (
	"regexp"
	"strings"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/pointer"
)

// propertyRefPattern matches a property path on the filtered entity: {E}.a.b
var propertyRefPattern = regexp.MustCompile(`\{E\}\.([\w.]+)`)

// PropertyPaths returns the distinct {E}.path references of text in order.
func PropertyPaths(text string) []string {
	var paths []string
	seen := make(map[string]struct{})
	for _, m := range propertyRefPattern.FindAllStringSubmatch(text, -1) {
		path := strings.TrimRight(m[1], ".")
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

func (p *Parser) annotateProperties(clause *condition.Clause) []condition.PropertyRef {
	paths := PropertyPaths(clause.Text + " " + clause.Join)
	if len(paths) == 0 {
		return nil
	}

	refs := make([]condition.PropertyRef, 0, len(paths))
	for _, path := range paths {
		resolved := pointer.Resolve(p.opts.model, p.opts.entity, path)
		if !resolved.Resolved {
			p.opts.logger.Debug("Unresolved property reference",
				"clause", clause.Name, "entity", p.opts.entity.EntityName, "path", path)
		}
		refs = append(refs, condition.PropertyRef{
			Path:     path,
			Kind:     resolved.Kind,
			Resolved: resolved.Resolved,
		})
	}
	return refs
}
