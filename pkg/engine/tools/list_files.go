package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"CorpusAgent/pkg/engine/api"
)

// ListFilesCap is the hard ceiling on returned paths absent a smaller limit.
const ListFilesCap = 2000

// ListFiles walks the corpus depth-first with an explicit work stack (no
// recursion depth surprises on deep trees) and returns at most limit
// relative paths. Unreadable subdirectories are skipped silently.
func ListFiles(root, substringFilter string, limit int) ([]string, error) {
	if limit <= 0 || limit > ListFilesCap {
		limit = ListFilesCap
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus root: %w", err)
	}
	if info, err := os.Stat(rootAbs); err != nil {
		return nil, fmt.Errorf("corpus root not accessible: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", root)
	}

	filter := strings.ToLower(substringFilter)

	var paths []string
	stack := []string{rootAbs}
	for len(stack) > 0 && len(paths) < limit {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // unreadable directory
		}

		// Stable walk order: directories pushed in reverse so the first
		// entry is visited first.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		var subdirs []string
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			full := filepath.Join(dir, name)
			if entry.IsDir() {
				subdirs = append(subdirs, full)
				continue
			}
			rel, err := filepath.Rel(rootAbs, full)
			if err != nil {
				continue
			}
			if filter != "" && !strings.Contains(strings.ToLower(rel), filter) {
				continue
			}
			paths = append(paths, rel)
			if len(paths) >= limit {
				break
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return paths, nil
}

// ListFilesTool exposes ListFiles to the agent.
type ListFilesTool struct {
	BaseTool
	corpusRoot string
}

// NewListFilesTool creates a new list_files tool.
func NewListFilesTool(corpusRoot string) *ListFilesTool {
	return &ListFilesTool{
		BaseTool: NewBaseTool(
			"list_files",
			"List document paths in the corpus. Returns relative paths, optionally filtered by a case-insensitive substring.",
			[]ParameterDef{
				{Name: "filter", Type: "string", Description: "Substring to filter paths by (optional)", Required: false},
				{Name: "limit", Type: "integer", Description: "Maximum number of paths to return (default 2000)", Required: false},
			},
		),
		corpusRoot: corpusRoot,
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args api.Args) (Result, error) {
	if err := t.ValidateArgs(args); err != nil {
		return toolError(err), nil
	}

	filter := GetStringArg(args, "filter", "")
	limit := GetIntArg(args, "limit", ListFilesCap)

	paths, err := ListFiles(t.corpusRoot, filter, limit)
	if err != nil {
		return toolError(err), nil
	}
	if len(paths) == 0 {
		return successText("No files found."), nil
	}
	return successResult(strings.Join(paths, "\n"), map[string]any{"count": len(paths)}), nil
}
