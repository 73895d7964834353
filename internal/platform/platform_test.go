package platform

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mustResolve(t *testing.T) *Shim {
	t.Helper()
	shim, err := Resolve()
	if err != nil {
		t.Skipf("platform not supported: %v", err)
	}
	return shim
}

func TestResolve(t *testing.T) {
	shim := mustResolve(t)
	if shim.PageSize <= 0 {
		t.Errorf("PageSize = %d, want > 0", shim.PageSize)
	}
	if shim.SyncFile == nil {
		t.Error("SyncFile not resolved")
	}
	again, _ := Resolve()
	if again != shim {
		t.Error("Resolve returned a different shim on the second call")
	}
}

func TestHeaderStoreRoundTrip(t *testing.T) {
	shim := mustResolve(t)
	dir := t.TempDir()

	store, data, err := OpenHeaderStore(shim, dir)
	if err != nil {
		t.Fatalf("OpenHeaderStore failed: %v", err)
	}
	if data != nil {
		t.Fatalf("fresh store returned data %q", data)
	}

	for _, payload := range []string{"first", "second", "third"} {
		if err := store.Write([]byte(payload)); err != nil {
			t.Fatalf("Write(%q) failed: %v", payload, err)
		}
	}
	if store.Sequence() != 3 {
		t.Errorf("Sequence() = %d, want 3", store.Sequence())
	}

	_, data, err = OpenHeaderStore(shim, dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if string(data) != "third" {
		t.Errorf("data = %q, want %q", data, "third")
	}
}

func TestHeaderStoreSurvivesTornCopy(t *testing.T) {
	shim := mustResolve(t)
	dir := t.TempDir()

	store, _, _ := OpenHeaderStore(shim, dir)
	store.Write([]byte("old"))
	store.Write([]byte("new"))

	// The latest copy lives in headers.two; corrupt it.
	path := filepath.Join(dir, HeaderFileTwo)
	raw, _ := os.ReadFile(path)
	raw[len(raw)-1] ^= 0xFF
	os.WriteFile(path, raw, 0644)

	_, data, err := OpenHeaderStore(shim, dir)
	if err != nil {
		t.Fatalf("OpenHeaderStore failed: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("data = %q, want fallback to %q", data, "old")
	}

	os.WriteFile(filepath.Join(dir, HeaderFileOne), []byte("garbage"), 0644)
	if _, _, err := OpenHeaderStore(shim, dir); !errors.Is(err, ErrHeaderCorrupt) {
		t.Errorf("err = %v, want ErrHeaderCorrupt", err)
	}
}

func TestPagerReadAndGrow(t *testing.T) {
	shim := mustResolve(t)
	f, err := os.Create(filepath.Join(t.TempDir(), "data.voron"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p, err := OpenPager(shim, f, 4096)
	if err != nil {
		t.Fatalf("OpenPager failed: %v", err)
	}
	defer p.Close()

	if _, err := p.Read(0, 1); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("Read on empty file = %v, want ErrPageOutOfRange", err)
	}

	if err := p.Grow(2 * 4096); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}
	page := bytes.Repeat([]byte{7}, 4096)
	if err := p.WriteAt(page, 1); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	got, err := p.Read(1, 1)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("mapped page does not reflect the written bytes")
	}

	old := got
	if err := p.Grow(8 * 4096); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}
	if p.NumberOfPages() != 8 {
		t.Errorf("NumberOfPages() = %d, want 8", p.NumberOfPages())
	}
	// Slices from the previous mapping stay readable.
	if old[0] != 7 {
		t.Errorf("old mapping byte = %d, want 7", old[0])
	}
	if _, err := p.Read(7, 2); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("Read past end = %v, want ErrPageOutOfRange", err)
	}
}

func TestOpenPagerInvalidPageSize(t *testing.T) {
	shim := mustResolve(t)
	f, _ := os.Create(filepath.Join(t.TempDir(), "data"))
	defer f.Close()

	if _, err := OpenPager(shim, f, 1000); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("err = %v, want ErrInvalidPageSize", err)
	}
}
