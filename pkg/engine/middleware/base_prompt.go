package middleware

import "context"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Preamble and Directives
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// operationalDirectives is the fixed base instruction block. It always
// applies, whatever the thread preamble says.
const operationalDirectives = `You answer questions about a document corpus. Before answering, search the corpus with the available tools; do not rely on memory alone.

When a search returns nothing, retry with alternative phrasings: synonyms, translations, and shorter fragments of the query. Scanned documents may contain broken spacing, so also try queries with spacing variations.

Cite the files your answer draws on by path. Never invent citations or quote text that the tools did not return. If the corpus does not contain an answer, say so plainly.`

// PreambleBuilder places the thread's operator preamble first.
type PreambleBuilder struct{}

func NewPreambleBuilder() PreambleBuilder { return PreambleBuilder{} }

func (PreambleBuilder) Name() string { return "preamble" }

func (PreambleBuilder) Apply(ctx context.Context, p *Prompt) error {
	p.Add(p.Preamble)
	return nil
}

// DirectivesBuilder appends the fixed operational directives.
type DirectivesBuilder struct{}

func NewDirectivesBuilder() DirectivesBuilder { return DirectivesBuilder{} }

func (DirectivesBuilder) Name() string { return "directives" }

func (DirectivesBuilder) Apply(ctx context.Context, p *Prompt) error {
	p.Add(operationalDirectives)
	return nil
}

// DefaultChain is the minimal instruction chain: preamble, then directives.
func DefaultChain() *Chain {
	return NewChain(NewPreambleBuilder(), NewDirectivesBuilder())
}
