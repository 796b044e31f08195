package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCorpusFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// scanOnlySearcher skips the external tool tier so tests are deterministic
// regardless of what is installed on the host.
func scanOnlySearcher(root string) *Searcher {
	return &Searcher{root: root}
}

func TestSearch_FallbackScanFindsSubstring(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "notes/a.txt", "first line\nthe treaty was signed in 1648\nlast line\n")
	writeCorpusFile(t, root, "notes/b.txt", "nothing relevant here\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "Treaty was SIGNED", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != SearchModeFallbackScan {
		t.Fatalf("expected mode %q, got %q", SearchModeFallbackScan, res.Mode)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(res.Hits))
	}
	if res.Hits[0].File != "notes/a.txt" || res.Hits[0].Line != 2 {
		t.Fatalf("unexpected hit: %+v", res.Hits[0])
	}
}

func TestSearch_NormalizedScanMatchesBrokenSpacing(t *testing.T) {
	root := t.TempDir()
	// OCR output with spacing inserted mid-word.
	writeCorpusFile(t, root, "scan.txt", "the tre aty was sig ned in 1648\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "treaty was signed", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != SearchModeNormalizedScan {
		t.Fatalf("expected mode %q, got %q", SearchModeNormalizedScan, res.Mode)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(res.Hits))
	}
}

func TestSearch_NormalizedScanMatchesAcrossLineBreaks(t *testing.T) {
	root := t.TempDir()
	// PDF extraction wrapping a line mid-word.
	writeCorpusFile(t, root, "scan.txt", "intro text\nraw mat\nerial ledger\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "raw material", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != SearchModeNormalizedScan {
		t.Fatalf("expected mode %q, got %q", SearchModeNormalizedScan, res.Mode)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(res.Hits))
	}
	// The hit reports the line where the match starts.
	if res.Hits[0].Line != 2 {
		t.Fatalf("expected line 2, got %d", res.Hits[0].Line)
	}
}

func TestSearch_NormalizedScanReportsEachOccurrence(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "scan.txt", "led ger one\nunrelated\nled\nger two\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "ledger", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(res.Hits), res.Hits)
	}
	if res.Hits[0].Line != 1 || res.Hits[1].Line != 3 {
		t.Fatalf("unexpected hit lines: %+v", res.Hits)
	}
}

func TestSearch_ZeroHitsIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "some content\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "absent phrase", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(res.Hits))
	}
}

func TestSearch_RegexMode(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "order 1712 issued\norder 9999 issued\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), `order 1\d{3}`, SearchOptions{Regex: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(res.Hits))
	}
	if res.Hits[0].Line != 1 {
		t.Fatalf("unexpected line: %d", res.Hits[0].Line)
	}
}

func TestSearch_InvalidRegexIsAnError(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "content\n")

	s := scanOnlySearcher(root)
	if _, err := s.Search(context.Background(), "(unclosed", SearchOptions{Regex: true}); err == nil {
		t.Fatalf("expected error for invalid regex, got nil")
	}
}

func TestSearch_GlobFilter(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "needle\n")
	writeCorpusFile(t, root, "b.md", "needle\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "needle", SearchOptions{Glob: "*.md"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].File != "b.md" {
		t.Fatalf("expected single hit in b.md, got %+v", res.Hits)
	}
}

func TestSearch_MaxMatchesClamped(t *testing.T) {
	root := t.TempDir()
	content := ""
	for i := 0; i < 10; i++ {
		content += "needle line\n"
	}
	writeCorpusFile(t, root, "a.txt", content)

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "needle", SearchOptions{MaxMatches: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(res.Hits))
	}
}

func TestSearch_HiddenDirectoriesSkipped(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, ".hidden/secret.txt", "needle\n")
	writeCorpusFile(t, root, "visible.txt", "needle\n")

	s := scanOnlySearcher(root)
	res, err := s.Search(context.Background(), "needle", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].File != "visible.txt" {
		t.Fatalf("expected only visible.txt, got %+v", res.Hits)
	}
}

func TestParseGrepLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   SearchHit
		wantOK bool
	}{
		{"match line", "dir/file.txt:12: some text", SearchHit{File: "dir/file.txt", Line: 12, Text: " some text"}, true},
		{"context line", "dir/file.txt-13-more text", SearchHit{File: "dir/file.txt", Line: 13, Text: "more text"}, true},
		{"garbage", "no separators here", SearchHit{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseGrepLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSearchTextTool_Execute(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "alpha beta gamma\n")

	tool := NewSearchTextTool(root)
	res, err := tool.Execute(context.Background(), map[string]any{"query": "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "success" {
		t.Fatalf("expected success, got %q (%s)", res.Status, res.Error)
	}
}

func TestSearchTextTool_MissingQuery(t *testing.T) {
	tool := NewSearchTextTool(t.TempDir())
	res, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "error" {
		t.Fatalf("expected error status, got %q", res.Status)
	}
}
