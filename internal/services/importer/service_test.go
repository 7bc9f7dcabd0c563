package importer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"ambush/internal/eventbus"
	"ambush/internal/repo"
	"ambush/pkg/logx"
)

type fakeLibrary struct {
	mu      sync.Mutex
	created map[string][]byte
	err     error
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{created: map[string][]byte{}}
}

func (f *fakeLibrary) Create(ctx context.Context, name string, data []byte, src eventbus.Source) (repo.Sound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repo.Sound{}, f.err
	}
	f.created[name] = data
	return repo.Sound{ID: int64(len(f.created)), Name: name, Data: data}, nil
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestScanExistingIngestsAudioFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lib := newFakeLibrary()
	s := New(Config{Dir: dir}, lib, logx.Nop())

	p1 := writeFile(t, dir, "a.mp3", []byte("audio-a"))
	writeFile(t, dir, "notes.txt", []byte("not audio"))

	s.scanExisting(context.Background())

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if string(lib.created["a.mp3"]) != "audio-a" {
		t.Fatalf("a.mp3 not ingested: %v", lib.created)
	}
	if _, ok := lib.created["notes.txt"]; ok {
		t.Fatal("non-audio file ingested")
	}

	// Imported file is removed, the skipped one stays.
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("imported file still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("skipped file should remain: %v", err)
	}
}

func TestIngestDuplicateLeavesFileInPlace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lib := newFakeLibrary()
	lib.err = &repo.ValidationError{Field: "name", Reason: "already exists"}
	s := New(Config{Dir: dir}, lib, logx.Nop())

	path := writeFile(t, dir, "dup.mp3", []byte("x"))
	s.ingest(context.Background(), path)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("duplicate file should be left in place: %v", err)
	}
}

func TestIngestSkipsEmptyFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lib := newFakeLibrary()
	s := New(Config{Dir: dir}, lib, logx.Nop())

	path := writeFile(t, dir, "empty.mp3", nil)
	s.ingest(context.Background(), path)

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if len(lib.created) != 0 {
		t.Fatalf("empty file ingested: %v", lib.created)
	}
}
