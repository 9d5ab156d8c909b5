package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileStore_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	const goroutines = 10
	var wg sync.WaitGroup

	wg.Add(goroutines)
	for i := range goroutines {
		go func(id int) {
			defer wg.Done()

			key := fmt.Sprintf("https://server-%d.example.com/api", id)
			err := store.Update(context.Background(), key, func(e *Entry) error {
				e.AccessToken = fmt.Sprintf("access-token-%d", id)
				return nil
			})
			if err != nil {
				t.Errorf("Goroutine %d: Failed to save entry: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read cache file: %v", err)
	}

	var m entryMap
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to parse cache file: %v", err)
	}
	if len(m.Entries) != goroutines {
		t.Errorf("Expected %d entries, got %d", goroutines, len(m.Entries))
	}
	for i := range goroutines {
		key := fmt.Sprintf("https://server-%d.example.com/api", i)
		e, ok := m.Entries[key]
		if !ok {
			t.Errorf("Missing entry for %s", key)
			continue
		}
		if want := fmt.Sprintf("access-token-%d", i); e.AccessToken != want {
			t.Errorf("Entry %s: expected %s, got %s", key, want, e.AccessToken)
		}
	}

	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("Lock file still exists after all saves completed")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file left behind")
	}
}

func TestFileStore_PreservesOtherServers(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	for _, srv := range []string{"server-1", "server-2"} {
		err := store.Update(ctx, srv, func(e *Entry) error {
			e.AccessToken = "token-" + srv
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to save %s: %v", srv, err)
		}
	}

	for _, srv := range []string{"server-1", "server-2"} {
		e, err := store.Load(ctx, srv)
		if err != nil {
			t.Fatalf("Failed to load %s: %v", srv, err)
		}
		if e.AccessToken != "token-"+srv {
			t.Errorf("%s token was not preserved: %q", srv, e.AccessToken)
		}
	}
}

func TestFileStore_CorruptFileIsReplaced(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path)

	if _, err := store.Load(ctx, "k"); err == nil {
		t.Fatalf("Expected a parse error loading a corrupt file")
	}

	err := store.Update(ctx, "k", func(e *Entry) error {
		e.AccessToken = "fresh"
		return nil
	})
	if err != nil {
		t.Fatalf("Update should start over on a corrupt file: %v", err)
	}

	e, err := store.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Failed to load after rewrite: %v", err)
	}
	if e.AccessToken != "fresh" {
		t.Errorf("Expected fresh, got %q", e.AccessToken)
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	err := store.Update(context.Background(), "k", func(e *Entry) error {
		e.AccessToken = "secret"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected 0600, got %o", perm)
	}
}

func TestFileStore_LockReleaseFailureIsLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	var logs bytes.Buffer
	store := NewFileStore(path, WithFileLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	// Pull the lock out from under the writer so the release fails.
	err := store.Update(context.Background(), "k", func(e *Entry) error {
		e.AccessToken = "tok"
		return os.Remove(path + ".lock")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !bytes.Contains(logs.Bytes(), []byte("failed to release lock")) {
		t.Errorf("Expected a release warning, got %q", logs.String())
	}
	e, err := store.Load(context.Background(), "k")
	if err != nil || e.AccessToken != "tok" {
		t.Errorf("Load = %+v, %v", e, err)
	}
}

func BenchmarkFileStore_Update(b *testing.B) {
	store := NewFileStore(filepath.Join(b.TempDir(), "session.json"))
	ctx := context.Background()

	for b.Loop() {
		err := store.Update(ctx, "bench", func(e *Entry) error {
			e.AccessToken = "access-token"
			return nil
		})
		if err != nil {
			b.Fatalf("Failed to save entry: %v", err)
		}
	}
}
