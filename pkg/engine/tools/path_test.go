package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveUnderRoot_BlocksDotDotEscape(t *testing.T) {
	root := t.TempDir()
	_, err := resolveUnderRoot(root, "../outside.txt")
	if err == nil {
		t.Fatalf("expected error for path escape, got nil")
	}
}

func TestResolveUnderRoot_BlocksSiblingPrefix(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "corpus")
	sibling := filepath.Join(base, "corpus-2")
	for _, dir := range []string{root, sibling} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	// An absolute path into a sibling that shares the root's name as a
	// prefix must be rejected.
	_, err := resolveUnderRoot(root, filepath.Join(sibling, "file.txt"))
	if err == nil {
		t.Fatalf("expected error for sibling prefix path, got nil")
	}
}

func TestResolveUnderRoot_AllowsRootItself(t *testing.T) {
	root := t.TempDir()
	got, err := resolveUnderRoot(root, ".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotReal, _ := filepath.EvalSymlinks(got)
	wantReal, _ := filepath.EvalSymlinks(root)
	if filepath.Clean(gotReal) != filepath.Clean(wantReal) {
		t.Fatalf("expected %q, got %q", wantReal, gotReal)
	}
}

func TestResolveUnderRoot_SymlinkSafety(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink behavior varies on Windows")
	}

	root := t.TempDir()
	outside := t.TempDir()

	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	_, err := resolveUnderRoot(root, "link.txt")
	if err == nil {
		t.Fatalf("expected error for symlink escape, got nil")
	}
}

func TestResolveUnderRoot_AllowsSymlinkInsideRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink behavior varies on Windows")
	}

	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(root, "alias.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	got, err := resolveUnderRoot(root, "alias.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotReal, _ := filepath.EvalSymlinks(got)
	wantReal, _ := filepath.EvalSymlinks(target)
	if filepath.Clean(gotReal) != filepath.Clean(wantReal) {
		t.Fatalf("expected %q, got %q", wantReal, gotReal)
	}
}
