package condfilter

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/nlstn/go-condfilter/internal/metadata"
	"github.com/nlstn/go-condfilter/internal/observability"
	"github.com/nlstn/go-condfilter/internal/parser"
)

// ParseString parses a filter definition without binding it to an entity.
// Failures wrap ErrInvalidFilter.
func (s *Service) ParseString(ctx context.Context, document string) (Condition, error) {
	return s.parseDocument(ctx, nil, document)
}

// ParseForEntity parses a filter definition for a registered entity set, so
// that the {E}.path references of every clause are resolved against it.
func (s *Service) ParseForEntity(ctx context.Context, entitySet, document string) (Condition, error) {
	entity, err := s.entity(entitySet)
	if err != nil {
		return nil, err
	}
	return s.parseDocument(ctx, entity, document)
}

// ParseElement parses an already decoded filter element. Its first child
// element is the root condition. Element trees are not cached.
func (s *Service) ParseElement(ctx context.Context, filter *etree.Element) (Condition, error) {
	ctx, span := s.observability.Tracer().StartParse(ctx, 0)
	defer span.End()
	timing := s.timing(ctx, "filter-parse", "Filter parse")
	defer timing.Stop()

	start := time.Now()
	cond, err := s.parseElement(filter, nil)
	s.observability.Metrics().RecordParse(ctx, time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return cond, nil
}

// MarshalString writes cond back as a filter definition.
func (s *Service) MarshalString(cond Condition) (string, error) {
	return parser.MarshalString(cond, parser.WithTypeResolver(s.resolver))
}

func (s *Service) parseDocument(ctx context.Context, entity *metadata.EntityMetadata, document string) (Condition, error) {
	ctx, span := s.observability.Tracer().StartParse(ctx, len(document))
	defer span.End()
	timing := s.timing(ctx, "filter-parse", "Filter parse")
	defer timing.Stop()

	key := document
	if entity != nil {
		key = entity.EntitySetName + "\x00" + document
	}

	start := time.Now()
	cond, hit, err := s.trees.GetOrCompute(key, func() (Condition, error) {
		cond, err := parser.ParseString(document, s.parserOptions(entity)...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		return cond, nil
	})
	span.SetAttributes(observability.AttrCacheHit.Bool(hit))
	if hit {
		s.observability.Metrics().RecordCacheHit(ctx)
		s.logger.Debug("Filter served from cache", "size", len(document))
		return cond, nil
	}
	s.observability.Metrics().RecordParse(ctx, time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(observability.AttrClauseCount.Int(len(Clauses(cond))))
	return cond, nil
}

func (s *Service) parseElement(filter *etree.Element, entity *metadata.EntityMetadata) (Condition, error) {
	p, err := parser.New(filter, s.parserOptions(entity)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	cond, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return cond, nil
}

func (s *Service) parserOptions(entity *metadata.EntityMetadata) []parser.Option {
	return []parser.Option{
		parser.WithLogger(s.logger),
		parser.WithTypeResolver(s.resolver),
		parser.WithModel(s.model, entity),
		parser.WithMaxDepth(s.maxDepth),
	}
}

// validateDefinition rejects definitions that do not parse before they are stored.
func (s *Service) validateDefinition(document string) error {
	_, err := s.ParseString(context.Background(), document)
	return err
}
