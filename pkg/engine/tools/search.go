package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/logger"
)

// Search tier mode tags, reported so callers can tell how hits were found.
const (
	SearchModePrimary        = "primary"
	SearchModeFallbackScan   = "fallback_scan"
	SearchModeNormalizedScan = "normalized_scan"
)

const (
	searchMaxMatchesCap   = 300
	searchContextLinesCap = 4
	searchMaxFileSize     = 4 * 1024 * 1024
)

// SearchOptions configures one corpus search.
type SearchOptions struct {
	Regex         bool
	CaseSensitive bool
	ContextLines  int    // clamped to 0..4
	MaxMatches    int    // clamped to 1..300
	Glob          string // file name glob, e.g. "*.txt"
}

// SearchHit is one matched line.
type SearchHit struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchResult carries the hits and the tier that produced them.
type SearchResult struct {
	Mode string      `json:"mode"`
	Hits []SearchHit `json:"hits"`
}

// Searcher runs layered text search over the corpus. Tiers are tried in
// order and the first tier producing any hits wins:
//
//  1. an external ripgrep-style subprocess (fast, regex and context aware);
//  2. an in-process scan, so results survive hosts without the external tool;
//  3. a whitespace-normalized scan that tolerates text reflowed by OCR or
//     PDF extraction pipelines which insert line breaks mid-word.
type Searcher struct {
	root   string
	rgPath string
}

// NewSearcher creates a Searcher over the given corpus root. The external
// search binary is located once; absence is not an error.
func NewSearcher(root string) *Searcher {
	rgPath, _ := exec.LookPath("rg")
	return &Searcher{root: root, rgPath: rgPath}
}

// Search runs the tiered search. Zero hits is not an error; the returned
// mode names the last tier attempted.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return SearchResult{}, fmt.Errorf("query is required")
	}
	if opts.MaxMatches <= 0 || opts.MaxMatches > searchMaxMatchesCap {
		opts.MaxMatches = searchMaxMatchesCap
	}
	if opts.ContextLines < 0 {
		opts.ContextLines = 0
	}
	if opts.ContextLines > searchContextLinesCap {
		opts.ContextLines = searchContextLinesCap
	}

	if s.rgPath != "" {
		hits, err := s.runRipgrep(ctx, query, opts)
		if err == nil && len(hits) > 0 {
			return SearchResult{Mode: SearchModePrimary, Hits: hits}, nil
		}
		if err != nil {
			logger.Warn("Search", "external search tool failed, falling back", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	hits, err := s.scan(ctx, query, opts, false)
	if err != nil {
		return SearchResult{}, err
	}
	if len(hits) > 0 {
		return SearchResult{Mode: SearchModeFallbackScan, Hits: hits}, nil
	}

	if stripWhitespace(query) == "" {
		return SearchResult{Mode: SearchModeFallbackScan, Hits: nil}, nil
	}
	hits, err = s.scan(ctx, query, opts, true)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Mode: SearchModeNormalizedScan, Hits: hits}, nil
}

// runRipgrep invokes the external tool and parses path:line:text output.
// Exit status 1 means zero matches, which is a valid empty result; any
// other failure is a real invocation error and disables this tier.
func (s *Searcher) runRipgrep(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	args := []string{"--line-number", "--no-heading", "--color", "never"}
	if !opts.CaseSensitive {
		args = append(args, "-i")
	}
	if !opts.Regex {
		args = append(args, "-F")
	}
	if opts.ContextLines > 0 {
		args = append(args, "-C", strconv.Itoa(opts.ContextLines))
	}
	if opts.Glob != "" {
		args = append(args, "--glob", opts.Glob)
	}
	args = append(args, "--max-count", strconv.Itoa(opts.MaxMatches))
	args = append(args, "--", query, ".")

	cmd := exec.CommandContext(ctx, s.rgPath, args...)
	cmd.Dir = s.root
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil // zero hits
		}
		return nil, fmt.Errorf("search subprocess: %w", err)
	}

	var hits []SearchHit
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line == "--" {
			continue
		}
		hit, ok := parseGrepLine(line)
		if !ok {
			continue
		}
		hits = append(hits, hit)
		if len(hits) >= opts.MaxMatches {
			break
		}
	}
	return hits, nil
}

// parseGrepLine parses "path:line:text" (match) or "path-line-text"
// (context) formatted output lines.
func parseGrepLine(line string) (SearchHit, bool) {
	for _, sep := range []byte{':', '-'} {
		first := strings.IndexByte(line, sep)
		if first <= 0 {
			continue
		}
		rest := line[first+1:]
		second := strings.IndexByte(rest, sep)
		if second <= 0 {
			continue
		}
		num, err := strconv.Atoi(rest[:second])
		if err != nil {
			continue
		}
		return SearchHit{
			File: filepath.ToSlash(line[:first]),
			Line: num,
			Text: rest[second+1:],
		}, true
	}
	return SearchHit{}, false
}

// scan walks the corpus and matches line by line. In normalized mode all
// whitespace (line breaks included) is stripped before substring comparison,
// so a match may span adjacent lines; the hit reports the line where the
// match starts.
func (s *Searcher) scan(ctx context.Context, query string, opts SearchOptions, normalized bool) ([]SearchHit, error) {
	var matcher lineMatcher
	var needle string
	if normalized {
		needle = stripWhitespace(query)
		if !opts.CaseSensitive {
			needle = strings.ToLower(needle)
		}
	} else {
		var err error
		matcher, err = buildMatcher(query, opts)
		if err != nil {
			return nil, err
		}
	}

	files, err := s.collectFiles(opts.Glob)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for _, file := range files {
		select {
		case <-ctx.Done():
			return hits, ctx.Err()
		default:
		}
		var fileHits []SearchHit
		var err error
		if normalized {
			fileHits, err = searchFileNormalized(file.abs, file.rel, needle, opts.CaseSensitive, opts.MaxMatches-len(hits))
		} else {
			fileHits, err = searchFileLines(file.abs, file.rel, matcher, opts.MaxMatches-len(hits))
		}
		if err != nil {
			continue // skip unreadable files
		}
		hits = append(hits, fileHits...)
		if len(hits) >= opts.MaxMatches {
			break
		}
	}
	return hits, nil
}

type lineMatcher func(line string) bool

func buildMatcher(query string, opts SearchOptions) (lineMatcher, error) {
	if opts.Regex {
		pattern := query
		if !opts.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		return re.MatchString, nil
	}

	needle := query
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
		return func(line string) bool {
			return strings.Contains(strings.ToLower(line), needle)
		}, nil
	}
	return func(line string) bool { return strings.Contains(line, needle) }, nil
}

type corpusFile struct {
	abs string
	rel string
}

func (s *Searcher) collectFiles(glob string) ([]corpusFile, error) {
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus root: %w", err)
	}

	var files []corpusFile
	walkErr := filepath.Walk(rootAbs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != rootAbs {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > searchMaxFileSize {
			return nil
		}
		if glob != "" {
			if matched, _ := filepath.Match(glob, info.Name()); !matched {
				return nil
			}
		}
		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		files = append(files, corpusFile{abs: path, rel: filepath.ToSlash(rel)})
		return nil
	})
	return files, walkErr
}

func searchFileLines(absPath, relPath string, match lineMatcher, budget int) ([]SearchHit, error) {
	if budget <= 0 {
		return nil, nil
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hits []SearchHit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if match(line) {
			hits = append(hits, SearchHit{File: relPath, Line: lineNum, Text: line})
			if len(hits) >= budget {
				break
			}
		}
	}
	return hits, scanner.Err()
}

// searchFileNormalized matches the stripped needle against the file's full
// whitespace-stripped text, so text reflowed across line breaks still
// matches. Each hit reports the line holding the first matched character.
func searchFileNormalized(absPath, relPath, needle string, caseSensitive bool, budget int) ([]SearchHit, error) {
	if budget <= 0 || needle == "" {
		return nil, nil
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// ends[i] is the stripped text length up to and including line i, so the
	// line owning offset off is the first i with ends[i] > off.
	var b strings.Builder
	ends := make([]int, len(lines))
	for i, line := range lines {
		stripped := stripWhitespace(line)
		if !caseSensitive {
			stripped = strings.ToLower(stripped)
		}
		b.WriteString(stripped)
		ends[i] = b.Len()
	}
	text := b.String()

	var hits []SearchHit
	lineIdx := 0
	for from := 0; ; {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			break
		}
		start := from + i
		for lineIdx < len(ends) && ends[lineIdx] <= start {
			lineIdx++
		}
		if lineIdx >= len(lines) {
			break
		}
		hits = append(hits, SearchHit{
			File: relPath,
			Line: lineIdx + 1,
			Text: strings.TrimSpace(lines[lineIdx]),
		})
		if len(hits) >= budget {
			break
		}
		from = start + len(needle)
	}
	return hits, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tool Wrapper
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// SearchTextTool exposes the tiered Searcher to the agent.
type SearchTextTool struct {
	BaseTool
	searcher *Searcher
}

// NewSearchTextTool creates a new search_text tool.
func NewSearchTextTool(corpusRoot string) *SearchTextTool {
	return &SearchTextTool{
		BaseTool: NewBaseTool(
			"search_text",
			"Search the document corpus for a query. Returns matching lines with file paths and line numbers. Falls back to a whitespace-normalized scan that tolerates OCR line-wrap artifacts.",
			[]ParameterDef{
				{Name: "query", Type: "string", Description: "Text or regex pattern to search for", Required: true},
				{Name: "regex", Type: "boolean", Description: "Treat the query as a regular expression", Required: false},
				{Name: "case_sensitive", Type: "boolean", Description: "Case-sensitive search", Required: false},
				{Name: "context_lines", Type: "integer", Description: "Context lines around matches (0-4)", Required: false},
				{Name: "max_matches", Type: "integer", Description: "Maximum matches to return (up to 300)", Required: false},
				{Name: "glob", Type: "string", Description: "File name glob filter, e.g. *.txt", Required: false},
			},
		),
		searcher: NewSearcher(corpusRoot),
	}
}

func (t *SearchTextTool) Execute(ctx context.Context, args api.Args) (Result, error) {
	if err := t.ValidateArgs(args); err != nil {
		return toolError(err), nil
	}

	query := GetStringArg(args, "query", "")
	if query == "" {
		return toolErrorf("query is required"), nil
	}
	opts := SearchOptions{
		Regex:         GetBoolArg(args, "regex", false),
		CaseSensitive: GetBoolArg(args, "case_sensitive", false),
		ContextLines:  GetIntArg(args, "context_lines", 0),
		MaxMatches:    GetIntArg(args, "max_matches", 50),
		Glob:          GetStringArg(args, "glob", ""),
	}

	result, err := t.searcher.Search(ctx, query, opts)
	if err != nil {
		return toolError(err), nil
	}
	if len(result.Hits) == 0 {
		return successResult("No matches found for query: "+query, result), nil
	}

	var out strings.Builder
	for _, h := range result.Hits {
		out.WriteString(fmt.Sprintf("%s:%d: %s\n", h.File, h.Line, strings.TrimSpace(h.Text)))
	}
	out.WriteString(fmt.Sprintf("\n(%d matches, mode=%s)", len(result.Hits), result.Mode))
	return successResult(out.String(), result), nil
}
