// Package middleware composes the instruction block sent to the remote
// agent from layered sources.
package middleware

import (
	"context"
	"strings"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Builder Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Prompt accumulates instruction blocks for one turn.
type Prompt struct {
	// Preamble is the thread's operator-settable preamble.
	Preamble string

	blocks []string
}

// Add appends a non-empty instruction block.
func (p *Prompt) Add(block string) {
	block = strings.TrimSpace(block)
	if block != "" {
		p.blocks = append(p.blocks, block)
	}
}

// String joins the accumulated blocks.
func (p *Prompt) String() string {
	return strings.Join(p.blocks, "\n\n")
}

// Builder contributes one instruction layer to the prompt.
type Builder interface {
	// Name returns the builder identifier.
	Name() string

	// Apply adds the builder's block to the prompt.
	Apply(ctx context.Context, p *Prompt) error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Chain
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Chain runs multiple builders in order.
type Chain struct {
	builders []Builder
}

// NewChain creates a builder chain.
func NewChain(builders ...Builder) *Chain {
	return &Chain{builders: builders}
}

// Add appends a builder to the chain.
func (c *Chain) Add(b Builder) {
	c.builders = append(c.builders, b)
}

// Build composes the full instruction block for a turn.
func (c *Chain) Build(ctx context.Context, preamble string) (string, error) {
	p := &Prompt{Preamble: preamble}
	for _, b := range c.builders {
		if err := b.Apply(ctx, p); err != nil {
			return "", err
		}
	}
	return p.String(), nil
}
