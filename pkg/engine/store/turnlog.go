package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"CorpusAgent/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// TurnLog
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// logRecord is one JSONL line: either a streamed event or a finalized turn.
type logRecord struct {
	Kind  string     `json:"kind"` // "event" | "turn"
	Event *api.Event `json:"event,omitempty"`
	Turn  *api.Turn  `json:"turn,omitempty"`
}

// TurnLog is an append-only JSONL log of normalized events and finalized
// turns, one file per thread, for auditing and replay. Log writes are
// best-effort side effects: failures must never alter a turn's reported
// status, so every method returns errors for the caller to log and drop.
type TurnLog struct {
	baseDir string
	mu      sync.Mutex
}

// NewTurnLog creates a JSONL turn log under stateDir.
func NewTurnLog(stateDir string) (*TurnLog, error) {
	baseDir := filepath.Join(stateDir, "turns")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create turns directory: %w", err)
	}
	return &TurnLog{baseDir: baseDir}, nil
}

func (l *TurnLog) path(threadID string) string {
	return filepath.Join(l.baseDir, threadID+".jsonl")
}

func (l *TurnLog) validatePath(p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	absBase, err := filepath.Abs(l.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return ErrInvalidPath
	}
	return nil
}

// OpenTurn opens the per-turn side-channel writer for a thread. The caller
// owns the writer and must Close it when the turn finalizes.
func (l *TurnLog) OpenTurn(threadID string) (*TurnWriter, error) {
	p := l.path(threadID)
	if err := l.validatePath(p); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	return &TurnWriter{file: f}, nil
}

// Replay returns all logged records for a thread in order.
func (l *TurnLog) Replay(ctx context.Context, threadID string) ([]api.Event, []api.Turn, error) {
	p := l.path(threadID)
	if err := l.validatePath(p); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	defer f.Close()

	var events []api.Event
	var turns []api.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return events, turns, ctx.Err()
		default:
		}
		var rec logRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // tolerate torn lines
		}
		switch {
		case rec.Kind == "event" && rec.Event != nil:
			events = append(events, *rec.Event)
		case rec.Kind == "turn" && rec.Turn != nil:
			turns = append(turns, *rec.Turn)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, turns, fmt.Errorf("failed to scan turn log: %w", err)
	}
	return events, turns, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// TurnWriter
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TurnWriter appends records for one turn and holds the file handle for the
// turn's lifetime.
type TurnWriter struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// AppendEvent logs one normalized event.
func (w *TurnWriter) AppendEvent(e api.Event) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	return w.append(logRecord{Kind: "event", Event: &e})
}

// AppendTurn logs a finalized turn record.
func (w *TurnWriter) AppendTurn(t api.Turn) error {
	return w.append(logRecord{Kind: "turn", Turn: &t})
}

func (w *TurnWriter) append(rec logRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}
	return nil
}

// Close releases the side-channel file handle. Safe to call twice.
func (w *TurnWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
