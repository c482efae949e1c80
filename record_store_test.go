package autosense

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRecordStoreCreateGetPut(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewRecordStore(filepath.Join(dir, "records"))
	assert.True(t, err == nil)

	err = store.Create(ctx, "ABC", testRecord{Name: "first", Count: 1})
	assert.True(t, err == nil)

	exists, err := store.Exists(ctx, "ABC")
	assert.True(t, err == nil)
	assert.True(t, exists)

	got := testRecord{}
	assert.True(t, store.Get(ctx, "ABC", &got) == nil)
	assert.Equals(t, got, testRecord{Name: "first", Count: 1})

	err = store.Create(ctx, "ABC", testRecord{Name: "second"})
	assert.True(t, errors.Is(err, ErrRecordExists))

	assert.True(t, store.Put(ctx, "ABC", testRecord{Name: "second", Count: 2}) == nil)
	assert.True(t, store.Get(ctx, "ABC", &got) == nil)
	assert.Equals(t, got, testRecord{Name: "second", Count: 2})

	// one indented json file per key, no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "records"))
	assert.True(t, err == nil)
	assert.Equals(t, len(entries), 1)
	assert.Equals(t, entries[0].Name(), "ABC.json")
}

func TestRecordStoreMissingRecords(t *testing.T) {
	ctx := context.Background()
	store, err := NewRecordStore(t.TempDir())
	assert.True(t, err == nil)

	got := testRecord{}
	assert.True(t, errors.Is(store.Get(ctx, "NOPE", &got), ErrRecordNotFound))
	assert.True(t, errors.Is(store.Put(ctx, "NOPE", got), ErrRecordNotFound))
	exists, err := store.Exists(ctx, "NOPE")
	assert.True(t, err == nil)
	assert.False(t, exists)
}

func TestRecordStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewRecordStore(t.TempDir())
	assert.True(t, err == nil)

	for _, key := range []string{"", "../escape", "a/b", `a\b`} {
		err := store.Create(ctx, key, testRecord{})
		assert.True(t, err != nil)
		assert.False(t, errors.Is(err, ErrRecordExists))
	}
}

func TestRecordStoreCreateRemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewRecordStore(t.TempDir())
	assert.True(t, err == nil)

	original := writeRecordFile
	defer func() { writeRecordFile = original }()
	writeRecordFile = func(f *os.File, data []byte) error {
		f.Write(data[:len(data)/2])
		return errors.New("no space left on device")
	}

	err = store.Create(ctx, "ABC", testRecord{Name: "first", Count: 1})
	assert.True(t, err != nil)
	exists, err := store.Exists(ctx, "ABC")
	assert.True(t, err == nil)
	assert.False(t, exists)

	// the key is still usable once the disk recovers
	writeRecordFile = original
	assert.True(t, store.Create(ctx, "ABC", testRecord{Name: "first", Count: 1}) == nil)
	got := testRecord{}
	assert.True(t, store.Get(ctx, "ABC", &got) == nil)
	assert.Equals(t, got, testRecord{Name: "first", Count: 1})
}
