package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/model"
)

// SessionStore persists the current session between calls and processes.
type SessionStore interface {
	// Load returns the stored session or nil when there is none.
	Load() (*model.Session, error)
	Save(s model.Session) error
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu sync.Mutex
	s  *model.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s model.Session) error {
	m.mu.Lock()
	m.s = &s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.s = nil
	m.mu.Unlock()
	return nil
}

const (
	sessionFile = "session.json"
	lockFile    = "session.lock"
)

// FileStore keeps the session in <dir>/session.json (0600). Concurrent CLI
// processes are serialized through an advisory lock on <dir>/session.lock.
type FileStore struct {
	dir  string
	lock *flock.Flock
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}, nil
}

// Path returns the session file location.
func (f *FileStore) Path() string { return filepath.Join(f.dir, sessionFile) }

func (f *FileStore) Load() (*model.Session, error) {
	if err := f.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer f.lock.Unlock()

	b, err := os.ReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sj convert.SessionJSON
	if err := json.Unmarshal(b, &sj); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s, err := convert.ToSession(sj, time.Now())
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (f *FileStore) Save(s model.Session) error {
	b, err := json.MarshalIndent(convert.FromSession(s, time.Now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer f.lock.Unlock()

	tmp, err := os.CreateTemp(f.dir, sessionFile+".*")
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer f.lock.Unlock()

	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
