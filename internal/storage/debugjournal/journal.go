// Package debugjournal records the write batches applied to an environment
// so that a run can be replayed later against a fresh one.
//
// A journal is a text file of JSON lines named <name>.djrn. Each committed
// batch is written as a begin marker, one line per operation and a commit
// marker:
//
//	{"op":"begin","seq":1}
//	{"op":"Add","tree":"users","key":"YWxpY2U=","value":"MQ=="}
//	{"op":"commit","seq":1}
//
// Keys and values are base64 encoded. A batch without its commit marker,
// the tail left by a crash, is ignored when the file is loaded.
package debugjournal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/storage/env"
)

// Extension is the file extension of debug journals.
const Extension = ".djrn"

const (
	opBegin  = "begin"
	opCommit = "commit"
)

// Journal errors.
var (
	ErrClosed        = errors.New("debugjournal: closed")
	ErrReadOnly      = errors.New("debugjournal: journal was loaded from a file")
	ErrMalformedLine = errors.New("debugjournal: malformed line")
)

type line struct {
	Op    string `json:"op"`
	Seq   uint64 `json:"seq,omitempty"`
	Tree  string `json:"tree,omitempty"`
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
}

// Journal records batches to a file, or holds batches loaded from one.
// Recording is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	seq    uint64
	closed bool
	logger logging.Logger

	batches []*env.WriteBatch
}

// FilePath returns the path of the journal called name in dir.
func FilePath(dir, name string) string {
	return filepath.Join(dir, name+Extension)
}

// New creates, or truncates, the journal called name in dir.
func New(dir, name string, logger logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := FilePath(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	return &Journal{
		path:   path,
		file:   f,
		w:      w,
		enc:    json.NewEncoder(w),
		logger: logger.WithComponent("debug-journal"),
	}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// RecordBatch appends batch as one transaction and flushes it to the
// file. It implements env.Recorder.
func (j *Journal) RecordBatch(batch *env.WriteBatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.file == nil {
		return ErrReadOnly
	}

	j.seq++
	lines := make([]line, 0, batch.Len()+2)
	lines = append(lines, line{Op: opBegin, Seq: j.seq})
	for _, e := range batch.Entries() {
		lines = append(lines, line{Op: e.Op.String(), Tree: e.Tree, Key: e.Key, Value: e.Value})
	}
	lines = append(lines, line{Op: opCommit, Seq: j.seq})
	for _, l := range lines {
		if err := j.enc.Encode(l); err != nil {
			return fmt.Errorf("debugjournal: write %s: %w", j.path, err)
		}
	}
	return j.w.Flush()
}

// Close flushes and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.file == nil {
		return nil
	}
	return errors.Join(j.w.Flush(), j.file.Close())
}

// FromFile loads the journal called name in dir. The returned journal
// only replays; it cannot record.
func FromFile(dir, name string, logger logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	path := FilePath(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batches, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("debugjournal: %s: %w", path, err)
	}
	j := &Journal{path: path, batches: batches, logger: logger.WithComponent("debug-journal")}
	if info, err := f.Stat(); err == nil {
		j.logger.Info("debug journal loaded",
			"path", path,
			"transactions", len(batches),
			"size", humanize.IBytes(uint64(info.Size())))
	}
	return j, nil
}

func read(r io.Reader) ([]*env.WriteBatch, error) {
	var batches []*env.WriteBatch
	var current *env.WriteBatch
	var seq uint64

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			// Only the last line can be cut short by a crash.
			if current != nil {
				break
			}
			return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, n, err)
		}
		switch l.Op {
		case opBegin:
			current, seq = env.NewWriteBatch(), l.Seq
		case opCommit:
			if current == nil || l.Seq != seq {
				return nil, fmt.Errorf("%w %d: commit of %d without its begin", ErrMalformedLine, n, l.Seq)
			}
			batches = append(batches, current)
			current = nil
		default:
			op, err := env.ParseBatchOperation(l.Op)
			if err != nil {
				return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, n, err)
			}
			if current == nil {
				return nil, fmt.Errorf("%w %d: %s outside a transaction", ErrMalformedLine, n, l.Op)
			}
			current.AddEntry(env.BatchEntry{Op: op, Tree: l.Tree, Key: l.Key, Value: l.Value})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// Transactions returns the loaded batches in recording order.
func (j *Journal) Transactions() []*env.WriteBatch {
	return j.batches
}

// Replay applies every loaded batch to e, each in its own write
// transaction, in recording order.
func (j *Journal) Replay(ctx context.Context, e *env.Environment) error {
	for i, b := range j.batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Write(ctx, b); err != nil {
			return fmt.Errorf("debugjournal: replay transaction %d of %d: %w", i+1, len(j.batches), err)
		}
	}
	j.logger.Info("debug journal replayed", "path", j.path, "transactions", len(j.batches))
	return nil
}
