package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

var _ Auditor = (*FileAuditor)(nil)

// FileRecentEntries is how many entries a FileAuditor keeps queryable.
const FileRecentEntries = 1000

// FileAuditor appends entries to a JSON-lines file. The latest
// FileRecentEntries entries, including those already in the file when it
// was opened, stay searchable through Find.
type FileAuditor struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	recent *InMemoryAuditor
}

func NewFileAuditor(path string) (*FileAuditor, error) {
	recent := NewBoundedInMemoryAuditor(FileRecentEntries)
	if err := replay(path, recent); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileAuditor{
		file:   file,
		enc:    json.NewEncoder(file),
		recent: recent,
	}, nil
}

// replay loads the entries of an existing log. Lines that do not decode are skipped.
func replay(path string, into *InMemoryAuditor) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	defer func() { _ = file.Close() }()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) == nil {
			_ = into.Log(e)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	return nil
}

func (f *FileAuditor) Log(entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enc.Encode(entry); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return f.recent.Log(entry)
}

// Find searches the recent entries, see InMemoryAuditor.Find.
func (f *FileAuditor) Find(filter func(entry Entry) bool, limit int) []Entry {
	return f.recent.Find(filter, limit)
}

func (f *FileAuditor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
