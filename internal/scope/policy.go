package scope

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ory/fosite"
)

// EmptyError is returned when no scope was requested at all
type EmptyError struct{}

func (*EmptyError) Error() string {
	return "at least one scope must be requested"
}

// UnknownError lists requested scopes that the server does not offer
type UnknownError struct {
	Scopes []string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown scope: %s", strings.Join(e.Scopes, " "))
}

// NotAllowedError lists requested scopes the server offers but the client
// is not entitled to
type NotAllowedError struct {
	Scopes []string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("scope not allowed for client: %s", strings.Join(e.Scopes, " "))
}

// Policy validates requested scopes against the scopes the server offers
// and the scopes a client is registered for
type Policy struct {
	available []string
	strategy  fosite.ScopeStrategy
}

type PolicyOption func(*Policy)

// WithStrategy overrides how a requested scope is matched against a list.
// The default is exact matching.
func WithStrategy(strategy fosite.ScopeStrategy) PolicyOption {
	return func(p *Policy) {
		p.strategy = strategy
	}
}

func NewPolicy(available []string, opts ...PolicyOption) *Policy {
	p := &Policy{
		available: Of(available...).Slice(),
		strategy:  fosite.ExactScopeStrategy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available returns the globally offered scopes in sorted order
func (p *Policy) Available() []string {
	return slices.Clone(p.available)
}

// Validate parses requested and checks it first against the global
// allow-list, then against the client's allowed set. Unknown scopes are
// always reported as unknown even when the client also lacks them.
func (p *Policy) Validate(requested string, allowed Set) (Set, error) {
	req := Parse(requested)
	if len(req) == 0 {
		return nil, &EmptyError{}
	}

	if unknown := p.missing(req, p.available); len(unknown) > 0 {
		return nil, &UnknownError{Scopes: unknown}
	}

	if denied := p.missing(req, allowed.Slice()); len(denied) > 0 {
		return nil, &NotAllowedError{Scopes: denied}
	}

	return req, nil
}

// missing returns the members of req that strategy does not find in haystack, sorted
func (p *Policy) missing(req Set, haystack []string) []string {
	var out []string
	for _, name := range req.Slice() {
		if !p.strategy(haystack, name) {
			out = append(out, name)
		}
	}
	return out
}
