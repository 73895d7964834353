package journal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/logging"
)

// ErrTransactionGap reports a record missing between two valid ones.
var ErrTransactionGap = errors.New("journal: missing transaction")

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// LastTransaction is the id of the last record applied, or the
	// starting point when nothing was applied.
	LastTransaction uint64
	Applied         int
	// Files lists the journal file numbers present after the replay.
	Files []int64
	// TornFile is the file whose tail was cut, 0 when the tail was clean.
	TornFile   int64
	TornOffset int64
}

// NextFileNumber returns the number a writer should continue with.
func (r ReplayResult) NextFileNumber() int64 {
	if len(r.Files) == 0 {
		return 1
	}
	return r.Files[len(r.Files)-1] + 1
}

// Replay reads the journal files in dir in order and calls apply for
// every record whose transaction id is greater than after. Records must
// follow each other without gaps. A torn record ends the replay: the file
// is truncated at the last valid record and later files are removed.
func Replay(dir string, after uint64, key *crypto.EncryptionKey, logger logging.Logger, apply func(*Record) error) (ReplayResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	res := ReplayResult{LastTransaction: after}
	numbers, err := ListFiles(dir)
	if err != nil {
		return res, err
	}

	for i, n := range numbers {
		torn, offset, err := replayFile(FilePath(dir, n), key, &res, apply)
		if err != nil {
			return res, fmt.Errorf("journal %s: %w", FileName(n), err)
		}
		res.Files = append(res.Files, n)
		if !torn {
			continue
		}

		res.TornFile, res.TornOffset = n, offset
		logger.Warn("torn journal tail truncated", "file", FileName(n), "offset", offset)
		if err := os.Truncate(FilePath(dir, n), offset); err != nil {
			return res, err
		}
		for _, later := range numbers[i+1:] {
			logger.Warn("journal file after torn tail removed", "file", FileName(later))
			if err := os.Remove(FilePath(dir, later)); err != nil && !os.IsNotExist(err) {
				return res, err
			}
		}
		break
	}
	return res, nil
}

// replayFile applies the records of one file. It reports whether the file
// ended with bytes that do not form a record, and where they start.
func replayFile(path string, key *crypto.EncryptionKey, res *ReplayResult, apply func(*Record) error) (bool, int64, error) {
	r, err := OpenReader(path, key)
	if err != nil {
		return false, 0, err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Offset() < r.size, r.Offset(), nil
		}
		if errors.Is(err, ErrTornRecord) {
			return true, r.Offset(), nil
		}
		if err != nil {
			return false, r.Offset(), err
		}
		if rec.TransactionID <= res.LastTransaction {
			continue
		}
		if rec.TransactionID != res.LastTransaction+1 {
			return false, r.Offset(), fmt.Errorf("%w: expected tx %d, found %d",
				ErrTransactionGap, res.LastTransaction+1, rec.TransactionID)
		}
		if err := apply(rec); err != nil {
			return false, r.Offset(), err
		}
		res.LastTransaction = rec.TransactionID
		res.Applied++
	}
}
