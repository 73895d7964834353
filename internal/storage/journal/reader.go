package journal

import (
	"errors"
	"io"
	"os"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
)

// Reader iterates the records of one journal file.
type Reader struct {
	file   *os.File
	size   int64
	offset int64
	key    *crypto.EncryptionKey
	header []byte
}

// OpenReader opens a journal file for reading.
func OpenReader(path string, key *crypto.EncryptionKey) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		file:   f,
		size:   info.Size(),
		key:    key,
		header: make([]byte, HeaderSize),
	}, nil
}

// Next returns the next record. It returns io.EOF at the clean end of the
// file and an error wrapping ErrTornRecord when the remaining bytes do not
// form a valid record. Offset then points at the start of the bad bytes.
func (r *Reader) Next() (*Record, error) {
	if r.offset >= r.size {
		return nil, io.EOF
	}
	if r.size-r.offset < HeaderSize {
		return nil, ErrTornRecord
	}
	if _, err := r.file.ReadAt(r.header, r.offset); err != nil {
		return nil, r.readError(err)
	}
	h, err := decodeHeader(r.header)
	if err != nil {
		if isZero(r.header) {
			return nil, io.EOF
		}
		return nil, err
	}
	total := int64(h.totalSize())
	if r.offset+total > r.size || h.payloadSize < 0 {
		return nil, ErrTornRecord
	}

	buf := make([]byte, HeaderSize+h.payloadSize)
	if _, err := r.file.ReadAt(buf, r.offset); err != nil {
		return nil, r.readError(err)
	}
	rec, err := Decode(buf, r.key)
	if err != nil {
		return nil, err
	}
	r.offset += total
	return rec, nil
}

func (r *Reader) readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTornRecord
	}
	return err
}

// Offset returns the end of the last record read successfully.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
