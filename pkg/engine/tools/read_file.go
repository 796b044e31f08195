package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"CorpusAgent/pkg/engine/api"
)

// ReadMaxLines is the ceiling on lines returned by one read.
const ReadMaxLines = 800

// ReadResult is a window of a corpus document.
type ReadResult struct {
	Text       string `json:"text"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TotalLines int    `json:"total_lines"`
}

// ReadFileRange reads up to maxLines lines of a corpus document starting at
// startLine (1-indexed). The path must resolve strictly inside root.
func ReadFileRange(root, relPath string, startLine, maxLines int) (ReadResult, error) {
	absPath, err := resolveUnderRoot(root, relPath)
	if err != nil {
		return ReadResult{}, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ReadResult{}, fmt.Errorf("file does not exist: %s", relPath)
		}
		return ReadResult{}, err
	}
	if info.IsDir() {
		return ReadResult{}, fmt.Errorf("path is a directory, not a file: %s", relPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return ReadResult{}, err
	}

	lines := strings.Split(string(content), "\n")
	// A trailing newline yields a spurious empty last element.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)

	if startLine < 1 {
		startLine = 1
	}
	if startLine > total {
		return ReadResult{}, fmt.Errorf("start_line (%d) exceeds file length (%d lines)", startLine, total)
	}
	if maxLines <= 0 || maxLines > ReadMaxLines {
		maxLines = ReadMaxLines
	}

	end := startLine + maxLines - 1
	if end > total {
		end = total
	}

	return ReadResult{
		Text:       strings.Join(lines[startLine-1:end], "\n"),
		StartLine:  startLine,
		EndLine:    end,
		TotalLines: total,
	}, nil
}

// ReadFileTool exposes ReadFileRange to the agent.
type ReadFileTool struct {
	BaseTool
	corpusRoot string
}

// NewReadFileTool creates a new read_file tool.
func NewReadFileTool(corpusRoot string) *ReadFileTool {
	return &ReadFileTool{
		BaseTool: NewBaseTool(
			"read_file",
			"Read a window of a corpus document. Returns the text with its line range; use start_line to page through long files.",
			[]ParameterDef{
				{Name: "path", Type: "string", Description: "Path of the document, relative to the corpus root", Required: true},
				{Name: "start_line", Type: "integer", Description: "First line to read (1-indexed, default 1)", Required: false},
				{Name: "max_lines", Type: "integer", Description: "Maximum lines to return (up to 800)", Required: false},
			},
		),
		corpusRoot: corpusRoot,
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args api.Args) (Result, error) {
	if err := t.ValidateArgs(args); err != nil {
		return toolError(err), nil
	}

	path := GetStringArg(args, "path", "")
	if path == "" {
		return toolErrorf("path is required"), nil
	}
	startLine := GetIntArg(args, "start_line", 1)
	maxLines := GetIntArg(args, "max_lines", ReadMaxLines)

	res, err := ReadFileRange(t.corpusRoot, path, startLine, maxLines)
	if err != nil {
		return toolError(err), nil
	}

	header := fmt.Sprintf("%s (lines %d-%d of %d)\n", path, res.StartLine, res.EndLine, res.TotalLines)
	return successResult(header+res.Text, res), nil
}
