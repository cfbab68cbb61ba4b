package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

var _ Store = (*FileStore)(nil)

type fileContents struct {
	Credentials map[string]*Record `json:"credentials"`
}

// FileStore keeps records in a JSON file, one record per API host, so switching
// between servers does not drop the session of another one.
type FileStore struct {
	mu   sync.Mutex
	path string
	host string
}

// DefaultPath returns ~/.gitdm/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".gitdm", "credentials.json"), nil
}

// NewFileStore returns a store for the given API server. An empty path selects DefaultPath.
func NewFileStore(path, server string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL '%s': %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL '%s' has no host", server)
	}
	return &FileStore{path: path, host: u.Host}, nil
}

// Path returns the location of the credentials file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return nil, &StoreError{Op: "get", Backend: "file", Cause: err}
	}
	rec, ok := contents.Credentials[s.host]
	if !ok || rec == nil || rec.Empty() {
		return nil, ErrCredentialNotFound
	}
	out := *rec
	return &out, nil
}

func (s *FileStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return &StoreError{Op: "put", Backend: "file", Cause: err}
	}
	contents.Credentials[s.host] = &rec
	if err := s.save(contents); err != nil {
		return &StoreError{Op: "put", Backend: "file", Cause: err}
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return &StoreError{Op: "clear", Backend: "file", Cause: err}
	}
	if _, ok := contents.Credentials[s.host]; !ok {
		return nil
	}
	delete(contents.Credentials, s.host)
	if err := s.save(contents); err != nil {
		return &StoreError{Op: "clear", Backend: "file", Cause: err}
	}
	return nil
}

// load reads the file. A missing file is an empty store.
func (s *FileStore) load() (*fileContents, error) {
	contents := &fileContents{Credentials: make(map[string]*Record)}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return contents, nil
		}
		return nil, fmt.Errorf("opening credentials file '%s': %w", s.path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := json.NewDecoder(f).Decode(contents); err != nil {
		return nil, fmt.Errorf("decoding credentials file '%s': %w", s.path, err)
	}
	if contents.Credentials == nil {
		contents.Credentials = make(map[string]*Record)
	}
	return contents, nil
}

// save writes to a temp file in the same directory and renames it over the target.
func (s *FileStore) save(contents *fileContents) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("creating temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("restricting temp credentials file: %w", err)
	}
	if err := json.NewEncoder(tmp).Encode(contents); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding credentials to '%s': %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing credentials file '%s': %w", s.path, err)
	}
	return nil
}
