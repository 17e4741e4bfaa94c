// Package mock provides a test double for the rhymesource.Provider interface.
//
// Use Provider to return pre-canned candidates per (text, relation) without a
// live rhyme API and to verify which lookups were issued.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: map[mock.Key][]rhymesource.Candidate{
//	        {Text: "tear", Relation: rhymesource.RelationPerfect}: {{Text: "year", Score: 900, HasScore: true}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

// Key identifies a canned response.
type Key struct {
	Text     string
	Relation rhymesource.Relation
}

// LookupCall records a single invocation of Lookup.
type LookupCall struct {
	// Ctx is the context passed to Lookup.
	Ctx context.Context
	// Text is the looked-up text.
	Text string
	// Relation is the requested relation.
	Relation rhymesource.Relation
}

// Provider is a mock implementation of rhymesource.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Default: "mock".
	NameValue string

	// Responses maps (text, relation) to the candidates returned by Lookup.
	// Missing keys yield an empty result.
	Responses map[Key][]rhymesource.Candidate

	// LookupErr, if non-nil, is returned as the error from every Lookup.
	LookupErr error

	// LookupFunc, if set, replaces the Responses/LookupErr behaviour.
	LookupFunc func(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, error)

	// --- Call records ---

	// LookupCalls records every call to Lookup in order.
	LookupCalls []LookupCall
}

// Ensure Provider implements the rhymesource.Provider interface at compile time.
var _ rhymesource.Provider = (*Provider)(nil)

// Lookup records the call and returns the configured response. Returned
// candidates have their Relation set to rel.
func (p *Provider) Lookup(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, error) {
	p.mu.Lock()
	p.LookupCalls = append(p.LookupCalls, LookupCall{Ctx: ctx, Text: text, Relation: rel})
	fn := p.LookupFunc
	err := p.LookupErr
	canned := p.Responses[Key{Text: text, Relation: rel}]
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, rel)
	}
	if err != nil {
		return nil, err
	}
	out := make([]rhymesource.Candidate, len(canned))
	for i, c := range canned {
		c.Relation = rel
		out[i] = c
	}
	return out, nil
}

// Name returns NameValue, or "mock" when unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// Calls returns a copy of the recorded Lookup calls.
func (p *Provider) Calls() []LookupCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LookupCall, len(p.LookupCalls))
	copy(out, p.LookupCalls)
	return out
}

// CallCount returns how many lookups were made for (text, rel).
func (p *Provider) CallCount(text string, rel rhymesource.Relation) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.LookupCalls {
		if c.Text == text && c.Relation == rel {
			n++
		}
	}
	return n
}
