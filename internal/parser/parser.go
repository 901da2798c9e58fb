// Package parser builds condition trees from saved filter documents.
//
// A saved filter is an element tree of the form
//
//	<filter>
//	  <and>
//	    <c name="name" operatorType="CONTAINS" type="PROPERTY">
//	      {E}.name like :component$filter.name123
//	      <param name="component$filter.name123" javaClass="java.lang.String">%acme%</param>
//	    </c>
//	    <or>...</or>
//	  </and>
//	</filter>
//
// The first child element of the wrapper is the root condition. Elements
// named "c" are clauses; every other element is a logical group whose name
// selects the boolean operation.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/metadata"
	"github.com/nlstn/go-condfilter/internal/params"
)

const (
	// DefaultMaxDepth bounds the nesting of logical groups.
	DefaultMaxDepth = 32

	clauseTag = "c"
	paramTag  = "param"
	joinTag   = "join"
)

var (
	// ErrEmptyFilter is returned for a missing root element or one without child elements.
	ErrEmptyFilter = errors.New("filter has no root condition")
	// ErrMaxDepth is returned when groups nest deeper than the configured limit.
	ErrMaxDepth = errors.New("filter exceeds maximum nesting depth")
)

// Option configures a Parser.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	resolver *params.TypeResolver
	model    *metadata.Model
	entity   *metadata.EntityMetadata
	maxDepth int
}

// WithLogger sets the logger used for debug output and soft-fails.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTypeResolver sets the resolver for javaClass attributes of declared parameters.
func WithTypeResolver(resolver *params.TypeResolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// WithModel enables annotation of {E}.path property references, resolved
// against entity within model.
func WithModel(model *metadata.Model, entity *metadata.EntityMetadata) Option {
	return func(o *options) {
		o.model = model
		o.entity = entity
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = params.NewTypeResolver(o.model)
	}
	return o
}

// Parser turns one saved filter element into a condition tree.
type Parser struct {
	root *etree.Element
	opts options
}

// New creates a parser for the filter wrapper element. The first child
// element of filter becomes the root condition; a nil filter or one without
// child elements yields ErrEmptyFilter.
func New(filter *etree.Element, opts ...Option) (*Parser, error) {
	if filter == nil {
		return nil, ErrEmptyFilter
	}
	children := filter.ChildElements()
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: <%s> has no child elements", ErrEmptyFilter, filter.Tag)
	}
	return &Parser{root: children[0], opts: newOptions(opts)}, nil
}

// ParseString reads a filter document and parses its root element.
func ParseString(document string, opts ...Option) (condition.Condition, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(document); err != nil {
		return nil, fmt.Errorf("failed to read filter document: %w", err)
	}
	p, err := New(doc.Root(), opts...)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// RootElement returns the element the root condition is built from.
func (p *Parser) RootElement() *etree.Element {
	return p.root
}

// Parse builds the condition tree. Repeated calls build independent, equal trees.
func (p *Parser) Parse() (condition.Condition, error) {
	root, err := p.parseElement(p.root, condition.ChildID("", 0), 1)
	if err != nil {
		return nil, err
	}
	p.opts.logger.Debug("Parsed filter",
		"root", p.root.Tag,
		"clauses", len(condition.Clauses(root)),
		"depth", condition.Depth(root))
	return root, nil
}

func (p *Parser) parseElement(el *etree.Element, id string, depth int) (condition.Condition, error) {
	if depth > p.opts.maxDepth {
		return nil, fmt.Errorf("%w (%d) at <%s> %s", ErrMaxDepth, p.opts.maxDepth, el.Tag, id)
	}
	if el.Tag == clauseTag {
		return p.parseClause(el, id), nil
	}

	op, err := condition.ParseLogicalOp(el.Tag)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", id, err)
	}

	labels := nodeLabels(el)
	group := &condition.LogicalCondition{
		ID:        id,
		Name:      labels.Display(),
		Labels:    labels,
		Operation: op,
	}
	for _, child := range el.ChildElements() {
		if child.Tag == paramTag || child.Tag == joinTag {
			continue
		}
		node, err := p.parseElement(child, condition.ChildID(id, len(group.Conditions)), depth+1)
		if err != nil {
			return nil, err
		}
		group.Conditions = append(group.Conditions, node)
	}
	return group, nil
}

func (p *Parser) parseClause(el *etree.Element, id string) *condition.Clause {
	labels := nodeLabels(el)
	clause := &condition.Clause{
		ID:           id,
		Name:         labels.Display(),
		Labels:       labels,
		Text:         directText(el),
		Join:         clauseJoin(el),
		OperatorType: el.SelectAttrValue("operatorType", ""),
		ValueType:    el.SelectAttrValue("type", ""),
		Unary:        strings.EqualFold(el.SelectAttrValue("unary", ""), "true"),
	}

	clause.Parameters = condition.NewParameterSet(params.Extract(clause.Text, clause.Name, id)...)
	for _, paramEl := range el.SelectElements(paramTag) {
		decl := params.Declaration{
			Name:      paramEl.SelectAttrValue("name", ""),
			JavaClass: paramEl.SelectAttrValue("javaClass", ""),
			Value:     directText(paramEl),
		}
		if strings.TrimSpace(decl.Name) == "" {
			p.opts.logger.Debug("Skipping parameter declaration without name", "clause", clause.Name, "id", id)
			continue
		}
		params.Declare(clause.Parameters, decl, clause.Name, id, p.opts.resolver, p.opts.logger)
	}

	if p.opts.entity != nil {
		clause.Properties = p.annotateProperties(clause)
	}
	return clause
}

func nodeLabels(el *etree.Element) condition.Labels {
	return condition.Labels{
		Name:       el.SelectAttrValue("name", ""),
		Caption:    el.SelectAttrValue("caption", ""),
		LocCaption: el.SelectAttrValue("locCaption", ""),
	}
}

// clauseJoin reads the nested <join> element, falling back to the join
// attribute used by older saved filters.
func clauseJoin(el *etree.Element) string {
	if joinEl := el.SelectElement(joinTag); joinEl != nil {
		return directText(joinEl)
	}
	return strings.TrimSpace(el.SelectAttrValue(joinTag, ""))
}

// directText concatenates the character data directly under el, trimmed.
func directText(el *etree.Element) string {
	var sb strings.Builder
	for _, token := range el.Child {
		if data, ok := token.(*etree.CharData); ok {
			sb.WriteString(data.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}
