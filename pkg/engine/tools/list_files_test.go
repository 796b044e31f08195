package tools

import (
	"context"
	"reflect"
	"testing"
)

func TestListFiles_SortedDepthFirst(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "b.txt", "x")
	writeCorpusFile(t, root, "a.txt", "x")
	writeCorpusFile(t, root, "sub/c.txt", "x")

	paths, err := ListFiles(root, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a.txt", "b.txt", "sub/c.txt"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
}

func TestListFiles_SubstringFilter(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "reports/annual.txt", "x")
	writeCorpusFile(t, root, "letters/draft.txt", "x")

	paths, err := ListFiles(root, "REPORT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "reports/annual.txt" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestListFiles_LimitRespected(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "x")
	writeCorpusFile(t, root, "b.txt", "x")
	writeCorpusFile(t, root, "c.txt", "x")

	paths, err := ListFiles(root, "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
}

func TestListFiles_HiddenEntriesSkipped(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, ".hidden/x.txt", "x")
	writeCorpusFile(t, root, ".dotfile", "x")
	writeCorpusFile(t, root, "visible.txt", "x")

	paths, err := ListFiles(root, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "visible.txt" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestListFiles_MissingRoot(t *testing.T) {
	if _, err := ListFiles("/nonexistent/corpus/root", "", 0); err == nil {
		t.Fatalf("expected error for missing root, got nil")
	}
}

func TestListFilesTool_Execute(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "doc.txt", "x")

	tool := NewListFilesTool(root)
	res, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "success" {
		t.Fatalf("expected success, got %q (%s)", res.Status, res.Error)
	}
	if res.Content != "doc.txt" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}
