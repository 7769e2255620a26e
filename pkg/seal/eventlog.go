package seal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry in a new event log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Event is one line in the hash-chained JSONL pipeline event log. All fields
// are scalars (no map[string]any) to guarantee deterministic json.Marshal
// field order for reproducible hashing.
type Event struct {
	Timestamp     string `json:"ts"`
	RunID         string `json:"run_id"`
	Stage         string `json:"stage"`
	RequirementID string `json:"requirement_id,omitempty"`
	Outcome       string `json:"outcome"`
	Detail        string `json:"detail,omitempty"`
	PrevHash      string `json:"prev_hash"`
}

// EventLog is an append-only JSONL log with SHA-256 hash chaining. Each
// entry's prev_hash is the hash of the previous entry's JSON line, forming a
// tamper-evident chain across runs.
type EventLog struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// OpenEventLog opens (or creates) an event log for appending. If the file
// exists, the last line is read to recover the chain tail.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("seal: create event log directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("seal: read existing event log: %w", err)
		}
		scanner := bufio.NewScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
		}
		closeErr := f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("seal: scan existing event log: %w", err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("seal: close event log: %w", closeErr)
		}
		if len(lastLine) > 0 {
			prevHash = hashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("seal: open event log: %w", err)
	}
	return &EventLog{path: path, file: file, prevHash: prevHash}, nil
}

// Record appends an event with hash chaining and syncs to disk.
func (l *EventLog) Record(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.PrevHash = l.prevHash

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("seal: marshal event: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("seal: write event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("seal: sync event log: %w", err)
	}
	l.prevHash = hashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ChainResult holds the outcome of an event-log chain verification.
type ChainResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// VerifyChain reads a JSONL event log and validates the hash chain,
// reporting the first broken link.
func VerifyChain(path string) ChainResult {
	f, err := os.Open(path)
	if err != nil {
		return ChainResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	var prevLine []byte
	for scanner.Scan() {
		lineNum++
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return ChainResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}

		if lineNum == 1 {
			if event.PrevHash != GenesisHash {
				return ChainResult{Error: "first entry does not reference genesis hash", ErrorLine: 1}
			}
		} else if event.PrevHash != hashLine(prevLine) {
			return ChainResult{Error: fmt.Sprintf("hash mismatch at line %d", lineNum), ErrorLine: lineNum}
		}
		prevLine = line
	}
	if err := scanner.Err(); err != nil {
		return ChainResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	return ChainResult{Valid: true, Lines: lineNum}
}

func hashLine(line []byte) string {
	return "sha256:" + HashText(string(line))
}
