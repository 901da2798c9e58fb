// Package params finds the named bind parameters of a clause and reconciles
// them with the parameters a saved filter declares explicitly.
package params

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/nlstn/go-condfilter/internal/condition"
)

// placeholderPattern matches a placeholder at the start of the input:
// ":name" or ":(?i)name", where name is made of word characters, dots and '$'.
var placeholderPattern = regexp.MustCompile(`^:(\(\?i\)\s*)?([\w.$]+)`)

// kindPrefixes lists the recognised name prefixes, without the '$' separator.
var kindPrefixes = []condition.ParamKind{
	condition.KindDatasource,
	condition.KindComponent,
	condition.KindParam,
	condition.KindSession,
	condition.KindCustom,
}

// Placeholder is one occurrence of a named parameter in clause text.
// Start and End delimit the whole token, including the colon and any (?i) marker.
type Placeholder struct {
	Start           int
	End             int
	Name            string
	CaseInsensitive bool
}

// Scan calls fn for every placeholder in text, in order of appearance.
// Double colons (casts such as "::text") and quoted literals are skipped.
func Scan(text string, fn func(Placeholder)) {
	inQuote := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote || ch != ':' {
			continue
		}
		if i+1 < len(text) && text[i+1] == ':' {
			i++
			continue
		}

		m := placeholderPattern.FindStringSubmatchIndex(text[i:])
		if m == nil {
			continue
		}
		name := strings.TrimRight(text[i+m[4]:i+m[5]], ".")
		if name == "" {
			continue
		}
		end := i + m[4] + len(name)
		fn(Placeholder{
			Start:           i,
			End:             end,
			Name:            name,
			CaseInsensitive: m[2] >= 0,
		})
		i = end - 1
	}
}

// Names returns the distinct placeholder names of text in first-occurrence order.
func Names(text string) []string {
	var names []string
	seen := make(map[string]struct{})
	Scan(text, func(p Placeholder) {
		if _, ok := seen[p.Name]; ok {
			return
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	})
	return names
}

// Extract returns one untyped parameter per distinct placeholder of text,
// owned by the given clause.
func Extract(text, clauseName, clauseID string) []condition.ParameterInfo {
	var out []condition.ParameterInfo
	index := make(map[string]int)
	Scan(text, func(p Placeholder) {
		if i, ok := index[p.Name]; ok {
			if p.CaseInsensitive {
				out[i].CaseInsensitive = true
			}
			return
		}
		index[p.Name] = len(out)
		kind, path := SplitKind(p.Name)
		out = append(out, condition.ParameterInfo{
			Name:            p.Name,
			Kind:            kind,
			Path:            path,
			CaseInsensitive: p.CaseInsensitive,
			ConditionName:   clauseName,
			ClauseID:        clauseID,
		})
	})
	return out
}

// SplitKind splits a parameter name into its kind prefix and the remaining path.
// Names without a recognised prefix have KindNone and are their own path.
func SplitKind(name string) (condition.ParamKind, string) {
	prefix, rest, ok := strings.Cut(name, "$")
	if !ok {
		return condition.KindNone, name
	}
	for _, kind := range kindPrefixes {
		if prefix == string(kind) {
			return kind, rest
		}
	}
	return condition.KindNone, name
}

// Declaration is a parameter declared explicitly by a <param> element.
type Declaration struct {
	Name      string
	JavaClass string
	Value     string
}

// Declare reconciles decl with the clause's parameter set. An existing
// parameter with the same name and owner is updated in place; otherwise a new
// one is added. A javaClass that cannot be resolved leaves the parameter
// untyped and is logged at debug level, never returned as an error.
func Declare(set *condition.ParameterSet, decl Declaration, clauseName, clauseID string, resolver *TypeResolver, logger *slog.Logger) condition.ParameterInfo {
	if logger == nil {
		logger = slog.Default()
	}

	name := strings.TrimPrefix(strings.TrimSpace(decl.Name), ":")
	kind, path := SplitKind(name)
	info := condition.ParameterInfo{
		Name:          name,
		Kind:          kind,
		Path:          path,
		ConditionName: clauseName,
		ClauseID:      clauseID,
		Value:         decl.Value,
	}

	if className := strings.TrimSpace(decl.JavaClass); className != "" {
		info.DeclaredClass = className
		typ, err := resolver.Resolve(className)
		if err != nil {
			logger.Debug("Ignoring unresolvable parameter class",
				"parameter", name, "clause", clauseName, "javaClass", className, "error", err)
		} else {
			info.JavaClass = typ
		}
	}

	set.Upsert(info)
	merged, _ := set.Get(info.Key())
	return merged
}
