package fsstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	ChatID int64  `json:"chat_id"`
	Lang   string `json:"lang"`
}

func TestReadJSONMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")
	var out record
	found, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for missing file")
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats", "42.json")
	in := record{ChatID: 42, Lang: "en"}
	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	var out record
	found, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true")
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestWriteJSONAtomicOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "42.json")
	if err := WriteJSONAtomic(path, record{ChatID: 42, Lang: "en"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteJSONAtomic(path, record{ChatID: 42, Lang: "de"}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	var out record
	if _, err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out.Lang != "de" {
		t.Fatalf("expected overwritten lang, got %q", out.Lang)
	}
}

func TestWithLockSerializes(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "42.lck")
	var mu sync.Mutex
	counter := 0

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), lockPath, func() error {
				mu.Lock()
				counter++
				mu.Unlock()
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("WithLock: %v", err)
	}
	if counter != 8 {
		t.Fatalf("expected 8 critical sections, got %d", counter)
	}
}

func TestWithLockNilFn(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "noop.lck")
	if err := WithLock(context.Background(), lockPath, nil); err != nil {
		t.Fatalf("WithLock nil fn: %v", err)
	}
}
