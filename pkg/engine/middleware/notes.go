package middleware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Corpus Notes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// notesFileName is looked up at the corpus root. The file is written by the
// corpus operator to describe the collection: languages, structure, naming
// conventions, known OCR quirks.
const notesFileName = "AGENT.md"

// NotesBuilder injects operator-written corpus notes when present.
type NotesBuilder struct {
	CorpusRoot string
}

// NewNotesBuilder creates a notes builder for the given corpus root.
func NewNotesBuilder(corpusRoot string) *NotesBuilder {
	return &NotesBuilder{CorpusRoot: corpusRoot}
}

func (b *NotesBuilder) Name() string { return "corpus_notes" }

// Apply adds the notes block. A missing or empty notes file is not an error.
func (b *NotesBuilder) Apply(ctx context.Context, p *Prompt) error {
	notes := readNonEmptyFile(filepath.Join(b.CorpusRoot, notesFileName))
	if notes == "" {
		return nil
	}
	p.Add(fmt.Sprintf("--- CORPUS NOTES ---\n%s\n--- END CORPUS NOTES ---", notes))
	return nil
}

func readNonEmptyFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
