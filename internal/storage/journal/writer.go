package journal

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/logging"
)

// Writer errors.
var (
	ErrWriterClosed = errors.New("journal: writer is closed")
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Dir         string
	MaxFileSize int64
	// Sync makes every Append durable before it returns.
	Sync bool
	Key  *crypto.EncryptionKey
	// SyncFile flushes a file to stable storage. Defaults to (*os.File).Sync.
	SyncFile func(*os.File) error
	// NextNumber is the number of the first file the writer creates.
	NextNumber int64
	Logger     logging.Logger
}

// Writer appends records to the journal, rotating to a new file once the
// current one reaches MaxFileSize.
type Writer struct {
	mu      sync.Mutex
	opts    WriterOptions
	current *os.File
	files   []FileInfo
	closed  bool
	logger  logging.Logger

	// writeAt is replaced in tests to simulate I/O failures.
	writeAt func(f *os.File, b []byte, off int64) (int, error)
}

// OpenWriter prepares a writer. No file is created until the first Append.
func OpenWriter(opts WriterOptions) (*Writer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("journal: empty directory")
	}
	if opts.MaxFileSize <= 0 {
		return nil, fmt.Errorf("journal: invalid max file size %d", opts.MaxFileSize)
	}
	if opts.SyncFile == nil {
		opts.SyncFile = (*os.File).Sync
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.NextNumber < 1 {
		opts.NextNumber = 1
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	return &Writer{
		opts:    opts,
		logger:  opts.Logger.WithComponent("journal"),
		writeAt: (*os.File).WriteAt,
	}, nil
}

// Append writes rec at the tail of the journal. When the write fails the
// file is truncated back to its previous size and the error returned.
func (w *Writer) Append(rec *Record) (int, error) {
	buf, err := rec.Encode(w.opts.Key)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWriterClosed
	}

	if w.current == nil || (w.tail().Size > 0 && w.tail().Size+int64(len(buf)) > w.opts.MaxFileSize) {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	info := w.tail()
	n, err := w.writeAt(w.current, buf, info.Size)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("journal: short write of %d/%d bytes", n, len(buf))
	}
	if err == nil && w.opts.Sync {
		err = w.opts.SyncFile(w.current)
	}
	if err != nil {
		if terr := w.current.Truncate(info.Size); terr != nil {
			w.logger.Error("failed to truncate journal after write failure",
				"file", FileName(info.Number), "error", terr)
		}
		return 0, fmt.Errorf("journal: append tx %d: %w", rec.TransactionID, err)
	}

	info.Size += int64(len(buf))
	if info.FirstTransaction == 0 {
		info.FirstTransaction = rec.TransactionID
	}
	info.LastTransaction = rec.TransactionID
	return len(buf), nil
}

func (w *Writer) tail() *FileInfo {
	return &w.files[len(w.files)-1]
}

// rotate closes the current file and starts the next one.
func (w *Writer) rotate() error {
	number := w.opts.NextNumber
	if len(w.files) > 0 {
		if err := w.current.Close(); err != nil {
			return err
		}
		w.current = nil
		number = w.tail().Number + 1
	}
	f, err := os.OpenFile(FilePath(w.opts.Dir, number), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.current = f
	w.files = append(w.files, FileInfo{Number: number})
	w.logger.Debug("journal file created", "file", FileName(number),
		"maxSize", humanize.IBytes(uint64(w.opts.MaxFileSize)))
	return nil
}

// Sync flushes the current file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if w.current == nil {
		return nil
	}
	return w.opts.SyncFile(w.current)
}

// Files returns a snapshot of the files written so far.
func (w *Writer) Files() []FileInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FileInfo(nil), w.files...)
}

// Retire deletes every file except the current one whose records are all
// at or below upTo, returning the files removed.
func (w *Writer) Retire(upTo uint64) ([]FileInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var removed []FileInfo
	keep := w.files[:0]
	for i, f := range w.files {
		if i < len(w.files)-1 && f.LastTransaction <= upTo {
			if err := os.Remove(FilePath(w.opts.Dir, f.Number)); err != nil && !os.IsNotExist(err) {
				keep = append(keep, w.files[i:]...)
				w.files = keep
				return removed, err
			}
			removed = append(removed, f)
			continue
		}
		keep = append(keep, f)
	}
	w.files = keep
	for _, f := range removed {
		w.logger.Debug("journal file retired", "file", FileName(f.Number), "lastTx", f.LastTransaction)
	}
	return removed, nil
}

// Close closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}
