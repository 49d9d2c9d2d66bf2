package scanner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"EventPoster/internal/domain"
)

var (
	// ErrUnknownParser is returned when a venue references a parser nobody registered.
	ErrUnknownParser = errors.New("unknown parser")
	// ErrParseFailure marks a parser that panicked instead of returning references.
	ErrParseFailure = errors.New("parser failed")
)

// Parser turns one venue listing page into event references. Implementations must be pure.
type Parser interface {
	Parse(html string) []domain.EventReference
}

// ParserFunc adapts a plain function to Parser.
type ParserFunc func(html string) []domain.EventReference

// Parse calls f(html).
func (f ParserFunc) Parse(html string) []domain.EventReference {
	return f(html)
}

// Registry keeps a mapping from parser names to their implementations.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// Register adds or replaces a parser implementation.
func (r *Registry) Register(name string, parser Parser) {
	if r.parsers == nil {
		r.parsers = map[string]Parser{}
	}
	r.parsers[name] = parser
}

// Resolve returns a parser by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Parser, error) {
	if parser, ok := r.parsers[name]; ok {
		return parser, nil
	}
	return nil, fmt.Errorf("parser %q: %w (available: %s)", name, ErrUnknownParser, strings.Join(r.Names(), ", "))
}

// Names lists registered parser names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate resolves every venue parser up front.
func (r *Registry) Validate(venues []domain.Venue) error {
	var errs []error
	for _, venue := range venues {
		if _, err := r.Resolve(venue.Parser); err != nil {
			errs = append(errs, fmt.Errorf("venue %s: %w", venue.Title, err))
		}
	}
	return errors.Join(errs...)
}

// SafeParse runs the parser and converts a panic into ErrParseFailure with an empty result.
func SafeParse(parser Parser, html string) (refs []domain.EventReference, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			refs = []domain.EventReference{}
			err = fmt.Errorf("%w: %v", ErrParseFailure, rec)
		}
	}()

	refs = parser.Parse(html)
	if refs == nil {
		refs = []domain.EventReference{}
	}
	return refs, nil
}
