package autosense

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// writeRecordFile is swapped in tests to simulate a failing disk.
var writeRecordFile = func(f *os.File, data []byte) error {
	_, err := f.Write(data)
	return err
}

// RecordStore keeps one indented JSON file per key under baseDir.
type RecordStore struct {
	baseDir string
	mu      deadlock.RWMutex
}

func NewRecordStore(baseDir string) (*RecordStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create base directory")
	}
	return &RecordStore{baseDir: baseDir}, nil
}

func (s *RecordStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", errors.Errorf("invalid key %q", key)
	}
	path := filepath.Join(s.baseDir, key+".json")

	// prevent directory traversal
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.baseDir) {
		return "", errors.Errorf("invalid key %q: path traversal detected", key)
	}
	return path, nil
}

// Create writes a new record and fails with ErrRecordExists rather than
// overwrite.
func (s *RecordStore) Create(ctx context.Context, key string, v interface{}) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrRecordExists, "%s", key)
		}
		return errors.Wrap(err, "create record file")
	}
	// a partial file would block the key forever
	if err := writeRecordFile(f, data); err != nil {
		f.Close()
		removeTempFile(path)
		return errors.Wrap(err, "write record file")
	}
	if err := f.Close(); err != nil {
		removeTempFile(path)
		return errors.Wrap(err, "close record file")
	}
	log.Debug().Str("component", "RECORD_STORE").Str("path", path).Msg("record created")
	return nil
}

// Put replaces an existing record through a temp file and rename.
func (s *RecordStore) Put(ctx context.Context, key string, v interface{}) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(ErrRecordNotFound, "%s", key)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write temp record file")
	}
	if err := os.Rename(tmp, path); err != nil {
		removeTempFile(tmp)
		return errors.Wrap(err, "replace record file")
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, key string, v interface{}) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrRecordNotFound, "%s", key)
		}
		return errors.Wrap(err, "read record file")
	}
	return errors.Wrap(json.Unmarshal(data, v), "unmarshal record")
}

// Exists checks if a record exists at the given key
func (s *RecordStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "stat record file")
	}
	return true, nil
}
