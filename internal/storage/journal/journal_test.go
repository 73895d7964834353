package journal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

func testRecord(txID uint64, pages ...int64) *Record {
	rec := &Record{
		TransactionID:  txID,
		NextPageNumber: 100,
		FreelistPage:   7,
		Root:           storage.TreeState{Type: storage.RootObjectVariableSizeTree, RootPage: 3, Depth: 1, LeafPages: 1, Entries: 2},
		Timestamp:      time.Unix(1700000000, 0),
	}
	for _, pn := range pages {
		data := bytes.Repeat([]byte{byte(pn)}, storage.PageSize)
		rec.Pages = append(rec.Pages, PageImage{PageNumber: pn, Data: data})
	}
	return rec
}

func testKey(t *testing.T) *crypto.EncryptionKey {
	t.Helper()
	raw, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	key, err := crypto.NewEncryptionKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newTestWriter(t *testing.T, dir string, maxSize int64) *Writer {
	t.Helper()
	w, err := OpenWriter(WriterOptions{Dir: dir, MaxFileSize: maxSize, Sync: true})
	if err != nil {
		t.Fatalf("OpenWriter() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// =============================================================================
// Record Tests
// =============================================================================

func TestRecordEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		key  bool
	}{
		{"plain", false},
		{"encrypted", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var key *crypto.EncryptionKey
			if tt.key {
				key = testKey(t)
			}
			rec := testRecord(5, 3, 9)
			rec.Pages = append(rec.Pages, PageImage{PageNumber: 20, Data: make([]byte, 3*storage.PageSize)})

			buf, err := rec.Encode(key)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(buf)%Alignment != 0 {
				t.Errorf("encoded size %d is not aligned", len(buf))
			}

			got, err := Decode(buf, key)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.TransactionID != 5 || got.NextPageNumber != 100 || got.FreelistPage != 7 {
				t.Errorf("Decode() header = %+v", got)
			}
			if got.Root != rec.Root {
				t.Errorf("Root = %+v, want %+v", got.Root, rec.Root)
			}
			if !got.Timestamp.Equal(rec.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
			}
			if len(got.Pages) != 3 || got.PageCount() != 5 {
				t.Fatalf("pages = %d (%d total), want 3 (5 total)", len(got.Pages), got.PageCount())
			}
			for i, p := range got.Pages {
				if p.PageNumber != rec.Pages[i].PageNumber || !bytes.Equal(p.Data, rec.Pages[i].Data) {
					t.Errorf("page %d differs", i)
				}
			}
		})
	}
}

func TestRecordEncryptedNeedsKey(t *testing.T) {
	buf, err := testRecord(1, 2).Encode(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(buf, nil); !errors.Is(err, ErrEncryptionKeyUsed) {
		t.Errorf("Decode() error = %v, want ErrEncryptionKeyUsed", err)
	}
	if _, err := Decode(buf, testKey(t)); !errors.Is(err, crypto.ErrDecryptFailed) {
		t.Errorf("Decode(wrong key) error = %v, want ErrDecryptFailed", err)
	}
}

func TestRecordDetectsDamage(t *testing.T) {
	tests := []struct {
		name   string
		damage func(buf []byte)
		want   error
	}{
		{"payload bit flip", func(b []byte) { b[HeaderSize+20] ^= 0x01 }, ErrChecksumMismatch},
		{"header bit flip", func(b []byte) { b[10] ^= 0x01 }, ErrChecksumMismatch},
		{"magic", func(b []byte) { b[0] = 0 }, ErrBadMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := testRecord(1, 2).Encode(nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.damage(buf)
			_, err = Decode(buf, nil)
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrTornRecord) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecordRejectsPartialPage(t *testing.T) {
	rec := &Record{TransactionID: 1, Pages: []PageImage{{PageNumber: 1, Data: make([]byte, 100)}}}
	if _, err := rec.Encode(nil); err == nil {
		t.Error("Encode() of a partial page succeeded")
	}
}

// =============================================================================
// File Name Tests
// =============================================================================

func TestFileNames(t *testing.T) {
	if got := FileName(42); got != "0000000000000000042.journal" {
		t.Errorf("FileName(42) = %s", got)
	}
	tests := []struct {
		name string
		want int64
		ok   bool
	}{
		{"0000000000000000042.journal", 42, true},
		{"42.journal", 0, false},
		{"0000000000000000042.txt", 0, false},
		{"000000000000000004x.journal", 0, false},
	}
	for _, tt := range tests {
		n, ok := ParseFileName(tt.name)
		if n != tt.want || ok != tt.ok {
			t.Errorf("ParseFileName(%s) = %d, %v, want %d, %v", tt.name, n, ok, tt.want, tt.ok)
		}
	}
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestWriterAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 1<<20)
	for tx := uint64(1); tx <= 3; tx++ {
		if _, err := w.Append(testRecord(tx, int64(tx))); err != nil {
			t.Fatalf("Append(%d) error = %v", tx, err)
		}
	}

	files := w.Files()
	if len(files) != 1 || files[0].FirstTransaction != 1 || files[0].LastTransaction != 3 {
		t.Fatalf("Files() = %+v", files)
	}

	r, err := OpenReader(FilePath(dir, files[0].Number), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for tx := uint64(1); tx <= 3; tx++ {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if rec.TransactionID != tx {
			t.Errorf("TransactionID = %d, want %d", rec.TransactionID, tx)
		}
	}
	if _, err := r.Next(); err == nil {
		t.Error("Next() past the end returned a record")
	}
}

func TestWriterRotates(t *testing.T) {
	dir := t.TempDir()
	// Each record takes two aligned blocks.
	w := newTestWriter(t, dir, 5*Alignment)
	for tx := uint64(1); tx <= 5; tx++ {
		if _, err := w.Append(testRecord(tx, 1)); err != nil {
			t.Fatal(err)
		}
	}
	files := w.Files()
	if len(files) != 3 {
		t.Fatalf("len(Files()) = %d, want 3", len(files))
	}
	for i, f := range files {
		if f.Size > 5*Alignment {
			t.Errorf("file %d size %d exceeds the limit", i, f.Size)
		}
	}

	removed, err := w.Retire(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("Retire() removed %d files, want 2", len(removed))
	}
	numbers, _ := ListFiles(dir)
	if len(numbers) != 1 || numbers[0] != files[2].Number {
		t.Errorf("ListFiles() = %v, want [%d]", numbers, files[2].Number)
	}
}

func TestWriterTruncatesOnFailure(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 1<<20)
	if _, err := w.Append(testRecord(1, 1)); err != nil {
		t.Fatal(err)
	}
	sizeBefore := w.Files()[0].Size

	injected := errors.New("disk full")
	w.writeAt = func(f *os.File, b []byte, off int64) (int, error) {
		n, _ := f.WriteAt(b[:len(b)/2], off)
		return n, injected
	}
	if _, err := w.Append(testRecord(2, 1)); !errors.Is(err, injected) {
		t.Fatalf("Append() error = %v, want %v", err, injected)
	}

	info, err := os.Stat(FilePath(dir, w.Files()[0].Number))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != sizeBefore {
		t.Errorf("file size = %d, want %d", info.Size(), sizeBefore)
	}
	if w.Files()[0].LastTransaction != 1 {
		t.Errorf("LastTransaction = %d, want 1", w.Files()[0].LastTransaction)
	}
}

// =============================================================================
// Replay Tests
// =============================================================================

func writeRecords(t *testing.T, dir string, maxSize int64, txs ...uint64) *Writer {
	t.Helper()
	w := newTestWriter(t, dir, maxSize)
	for _, tx := range txs {
		if _, err := w.Append(testRecord(tx, int64(tx))); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func TestReplayAppliesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, 5*Alignment, 1, 2, 3, 4, 5).Close()

	var seen []uint64
	res, err := Replay(dir, 2, nil, nil, func(r *Record) error {
		seen = append(seen, r.TransactionID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(seen) != 3 || seen[0] != 3 || seen[2] != 5 {
		t.Errorf("applied = %v, want [3 4 5]", seen)
	}
	if res.LastTransaction != 5 || res.Applied != 3 || res.TornFile != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.NextFileNumber() != 4 {
		t.Errorf("NextFileNumber() = %d, want 4", res.NextFileNumber())
	}
}

func TestReplayTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	w := writeRecords(t, dir, 1<<20, 1, 2, 3)
	f := w.Files()[0]
	w.Close()
	path := FilePath(dir, f.Number)

	// Tear the last record in half.
	goodSize := f.Size - 2*Alignment
	if err := os.Truncate(path, goodSize+Alignment/2); err != nil {
		t.Fatal(err)
	}
	// A later file must not survive a torn tail.
	later := FilePath(dir, f.Number+1)
	if err := os.WriteFile(later, []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	var seen []uint64
	res, err := Replay(dir, 0, nil, nil, func(r *Record) error {
		seen = append(seen, r.TransactionID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(seen) != 2 || res.LastTransaction != 2 {
		t.Errorf("applied = %v, last = %d, want [1 2]", seen, res.LastTransaction)
	}
	if res.TornFile != f.Number || res.TornOffset != goodSize {
		t.Errorf("torn = %d@%d, want %d@%d", res.TornFile, res.TornOffset, f.Number, goodSize)
	}
	info, _ := os.Stat(path)
	if info.Size() != goodSize {
		t.Errorf("file size = %d, want %d", info.Size(), goodSize)
	}
	if _, err := os.Stat(later); !os.IsNotExist(err) {
		t.Errorf("later journal still exists: %v", err)
	}
}

func TestReplayDetectsGap(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, 1<<20, 1, 2, 4).Close()

	_, err := Replay(dir, 0, nil, nil, func(*Record) error { return nil })
	if !errors.Is(err, ErrTransactionGap) {
		t.Errorf("Replay() error = %v, want ErrTransactionGap", err)
	}
}

func TestReplayEmptyDirectory(t *testing.T) {
	res, err := Replay(filepath.Join(t.TempDir(), "missing"), 9, nil, nil, func(*Record) error { return nil })
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.LastTransaction != 9 || res.Applied != 0 || res.NextFileNumber() != 1 {
		t.Errorf("result = %+v", res)
	}
}
