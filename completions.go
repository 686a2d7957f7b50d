package mcp

import (
	"context"
	"fmt"
)

// Completion is the raw outcome of a completion handler before response
// construction. Build one with CompleteValues or CompleteWithTotal.
type Completion struct {
	Values   []string
	Total    int
	HasTotal bool
}

// CompleteValues builds a completion outcome from the candidate values
// alone; the response total is derived from their count.
func CompleteValues(values ...string) Completion {
	return Completion{Values: values}
}

// CompleteWithTotal builds a completion outcome for a partial candidate
// list out of total matches.
func CompleteWithTotal(values []string, total int) Completion {
	return Completion{Values: values, Total: total, HasTotal: true}
}

// CompletionFunc serves completion/complete for one (refType, refName)
// pair.
type CompletionFunc func(ctx context.Context, ex *Exchange, arg CompletionArgument) (Completion, error)

// DefaultCompletionFunc serves completion/complete when no specific
// handler matches the reference.
type DefaultCompletionFunc func(ctx context.Context, ex *Exchange, ref CompletionRef, arg CompletionArgument) (Completion, error)

type completionResult struct {
	Completion struct {
		Values  []string `json:"values"`
		Total   int      `json:"total,omitempty"`
		HasMore bool     `json:"hasMore"`
	} `json:"completion"`
}

// buildCompletionResult truncates values to the first 100 entries. Without
// an explicit total, hasMore reports truncation; with one, hasMore is true
// while the candidate count stays below it.
func buildCompletionResult(c Completion) completionResult {
	var res completionResult

	count := len(c.Values)
	values := c.Values
	if count > 100 {
		values = values[:100]
	}
	if values == nil {
		values = []string{}
	}
	res.Completion.Values = values

	if c.HasTotal {
		res.Completion.Total = c.Total
		res.Completion.HasMore = count < c.Total
	} else {
		res.Completion.Total = count
		res.Completion.HasMore = count > 100
	}
	return res
}

func handleCompletionComplete(ctx context.Context, ex *Exchange, params any) (any, error) {
	var p struct {
		Ref      CompletionRef      `json:"ref"`
		Argument CompletionArgument `json:"argument"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	refName := p.Ref.Name
	if refName == "" {
		refName = p.Ref.URI
	}

	s := ex.sess
	s.mu.Lock()
	fn, ok := s.completions[completionKey{refType: p.Ref.Type, refName: refName}]
	fallback := s.defaultCompletion
	s.mu.Unlock()

	var (
		c   Completion
		err error
	)
	switch {
	case ok:
		c, err = fn(ctx, ex, p.Argument)
	case fallback != nil:
		c, err = fallback(ctx, ex, p.Ref, p.Argument)
	default:
		return nil, invalidParams(fmt.Sprintf("Completion %s/%s not found", p.Ref.Type, refName))
	}
	if err != nil {
		return nil, err
	}
	return buildCompletionResult(c), nil
}
