package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/daynest/realtime/internal/domain"
)

// Persister stores the session snapshot under a fixed named slot so a
// process restart does not force re-login.
type Persister interface {
	Save(s *domain.Session) error
	Load() (*domain.Session, error) // (nil, nil) when the slot is empty
	Clear() error
}

const slotFile = "session.json"

// FileStore persists the snapshot as a JSON file in a state directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path() string {
	return filepath.Join(f.dir, slotFile)
}

func (f *FileStore) Save(s *domain.Session) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash never leaves a half-written slot.
	tmp := f.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path())
}

func (f *FileStore) Load() (*domain.Session, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
