package newsletters

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Registry is an ordered set of handlers. The first matching handler wins.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates a registry that consults handlers in the given order
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: append([]Handler(nil), handlers...)}
}

// Default returns a registry of every built-in handler in DefaultOrder
func Default() *Registry {
	r, _ := ByName(DefaultOrder)
	return r
}

// ByName builds a registry from built-in handler names, keeping their order
func ByName(names []string) (*Registry, error) {
	handlers := make([]Handler, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		build, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown newsletter handler %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		handlers = append(handlers, build())
	}
	return NewRegistry(handlers...), nil
}

// Handlers returns the handlers in registration order
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Select returns the first handler whose predicate matches, or nil
func (r *Registry) Select(in Input) Handler {
	for _, h := range r.handlers {
		if h.IsNewsletter(in) {
			return h
		}
	}
	return nil
}

// SelectHandler is Select for callers that only have the three headers
func (r *Registry) SelectHandler(postHeader, from, unsubscribe string) Handler {
	return r.Select(Input{
		PostHeader:  postHeader,
		From:        strings.ToLower(strings.TrimSpace(from)),
		Unsubscribe: unsubscribe,
	})
}

// Run calls h.Preprocess, turning a panic into an error
func Run(h Handler, doc *html.Node) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), rec)
		}
	}()
	if err := h.Preprocess(doc); err != nil {
		return fmt.Errorf("handler %s: %w", h.Name(), err)
	}
	return nil
}
