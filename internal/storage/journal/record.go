// Package journal implements the write-ahead journal of a storage
// environment: one record per committed write transaction, holding the
// full images of every page the transaction modified.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Record constants.
const (
	// HeaderSize is the fixed size of a record header.
	// Layout (little endian):
	//   - Bytes 0-3:     Magic (uint32)
	//   - Bytes 4-7:     Flags (uint32)
	//   - Bytes 8-15:    TransactionID (uint64)
	//   - Bytes 16-23:   NextPageNumber (int64)
	//   - Bytes 24-31:   FreelistPage (int64)
	//   - Bytes 32-87:   Root (TreeState)
	//   - Bytes 88-91:   PageCount (uint32)
	//   - Bytes 92-95:   PayloadSize (uint32), as stored
	//   - Bytes 96-103:  Timestamp (unix nanoseconds)
	//   - Bytes 104-119: reserved
	//   - Bytes 120-127: Checksum (xxhash64 of bytes 0-119 and the payload)
	HeaderSize = 128

	// Alignment is the size every record is padded to a multiple of.
	Alignment = storage.PageSize

	// RecordMagic identifies a record header ("JRNL").
	RecordMagic uint32 = 0x4C4E524A

	// FlagEncrypted marks a payload sealed with AES-GCM.
	FlagEncrypted uint32 = 1 << 0

	pageEntryHeaderSize = 16
	checksumOffset      = 120
)

// Record errors.
var (
	ErrTornRecord        = errors.New("journal: torn or incomplete record")
	ErrChecksumMismatch  = fmt.Errorf("%w: checksum mismatch", ErrTornRecord)
	ErrBadMagic          = fmt.Errorf("%w: bad magic", ErrTornRecord)
	ErrCorruptedPayload  = errors.New("journal: corrupted payload")
	ErrEncryptionKeyUsed = errors.New("journal: record is encrypted but no key was given")
)

// PageImage is the full content of a page run written by a transaction.
type PageImage struct {
	PageNumber int64
	Data       []byte // a multiple of storage.PageSize
}

// NumberOfPages returns how many pages the image covers.
func (p PageImage) NumberOfPages() int {
	return len(p.Data) / storage.PageSize
}

// Record is one committed transaction.
type Record struct {
	TransactionID  uint64
	NextPageNumber int64
	FreelistPage   int64
	Root           storage.TreeState
	Timestamp      time.Time
	Pages          []PageImage
}

// PageCount returns the total number of pages carried by the record.
func (r *Record) PageCount() int {
	n := 0
	for _, p := range r.Pages {
		n += p.NumberOfPages()
	}
	return n
}

func (r *Record) payloadSize() int {
	size := 0
	for _, p := range r.Pages {
		size += pageEntryHeaderSize + len(p.Data)
	}
	return size
}

// AlignedSize rounds size up to the record alignment.
func AlignedSize(size int) int {
	return (size + Alignment - 1) / Alignment * Alignment
}

// Encode serializes the record, sealing the payload when key is set. The
// result is padded to a multiple of Alignment.
func (r *Record) Encode(key *crypto.EncryptionKey) ([]byte, error) {
	plainSize := r.payloadSize()
	storedSize := plainSize
	var flags uint32
	if key != nil {
		flags |= FlagEncrypted
		storedSize += crypto.Overhead
	}

	buf := make([]byte, AlignedSize(HeaderSize+storedSize))
	h := buf[:HeaderSize]
	binary.LittleEndian.PutUint32(h[0:4], RecordMagic)
	binary.LittleEndian.PutUint32(h[4:8], flags)
	binary.LittleEndian.PutUint64(h[8:16], r.TransactionID)
	binary.LittleEndian.PutUint64(h[16:24], uint64(r.NextPageNumber))
	binary.LittleEndian.PutUint64(h[24:32], uint64(r.FreelistPage))
	r.Root.MarshalTo(h[32 : 32+storage.TreeStateSize])
	binary.LittleEndian.PutUint32(h[88:92], uint32(r.PageCount()))
	binary.LittleEndian.PutUint32(h[92:96], uint32(storedSize))
	binary.LittleEndian.PutUint64(h[96:104], uint64(r.Timestamp.UnixNano()))

	payload := buf[HeaderSize : HeaderSize+storedSize]
	plain := payload[:plainSize]
	if key != nil {
		plain = make([]byte, plainSize)
	}
	off := 0
	for _, p := range r.Pages {
		if len(p.Data) == 0 || len(p.Data)%storage.PageSize != 0 {
			return nil, fmt.Errorf("journal: page %d image is %d bytes", p.PageNumber, len(p.Data))
		}
		binary.LittleEndian.PutUint64(plain[off:], uint64(p.PageNumber))
		binary.LittleEndian.PutUint32(plain[off+8:], uint32(p.NumberOfPages()))
		off += pageEntryHeaderSize
		off += copy(plain[off:], p.Data)
	}
	if key != nil {
		sealed, err := key.Seal(payload[:0], plain, h[:checksumOffset])
		if err != nil {
			return nil, err
		}
		if len(sealed) != storedSize {
			return nil, fmt.Errorf("journal: sealed payload is %d bytes, want %d", len(sealed), storedSize)
		}
	}

	binary.LittleEndian.PutUint64(h[checksumOffset:], checksum(h, payload))
	return buf, nil
}

func checksum(header, payload []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(header[:checksumOffset])
	_, _ = d.Write(payload)
	return d.Sum64()
}

// recordHeader is the decoded fixed part of a record.
type recordHeader struct {
	flags          uint32
	transactionID  uint64
	nextPageNumber int64
	freelistPage   int64
	root           storage.TreeState
	pageCount      int
	payloadSize    int
	timestamp      time.Time
	checksum       uint64
}

// totalSize returns the aligned on-disk size of the record.
func (h *recordHeader) totalSize() int {
	return AlignedSize(HeaderSize + h.payloadSize)
}

func decodeHeader(buf []byte) (*recordHeader, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTornRecord
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != RecordMagic {
		return nil, ErrBadMagic
	}
	root, err := storage.UnmarshalTreeState(buf[32 : 32+storage.TreeStateSize])
	if err != nil {
		return nil, err
	}
	return &recordHeader{
		flags:          binary.LittleEndian.Uint32(buf[4:8]),
		transactionID:  binary.LittleEndian.Uint64(buf[8:16]),
		nextPageNumber: int64(binary.LittleEndian.Uint64(buf[16:24])),
		freelistPage:   int64(binary.LittleEndian.Uint64(buf[24:32])),
		root:           root,
		pageCount:      int(binary.LittleEndian.Uint32(buf[88:92])),
		payloadSize:    int(binary.LittleEndian.Uint32(buf[92:96])),
		timestamp:      time.Unix(0, int64(binary.LittleEndian.Uint64(buf[96:104]))),
		checksum:       binary.LittleEndian.Uint64(buf[checksumOffset:HeaderSize]),
	}, nil
}

// Decode parses a record encoded by Encode. buf must hold at least the
// header and payload; padding is ignored.
func Decode(buf []byte, key *crypto.EncryptionKey) (*Record, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < HeaderSize+h.payloadSize {
		return nil, ErrTornRecord
	}
	payload := buf[HeaderSize : HeaderSize+h.payloadSize]
	if checksum(buf[:HeaderSize], payload) != h.checksum {
		return nil, ErrChecksumMismatch
	}

	if h.flags&FlagEncrypted != 0 {
		if key == nil {
			return nil, ErrEncryptionKeyUsed
		}
		plain, err := key.Open(nil, payload, buf[:checksumOffset])
		if err != nil {
			return nil, fmt.Errorf("journal: tx %d: %w", h.transactionID, err)
		}
		payload = plain
	}

	rec := &Record{
		TransactionID:  h.transactionID,
		NextPageNumber: h.nextPageNumber,
		FreelistPage:   h.freelistPage,
		Root:           h.root,
		Timestamp:      h.timestamp,
	}
	pages := 0
	for off := 0; off < len(payload); {
		if off+pageEntryHeaderSize > len(payload) {
			return nil, fmt.Errorf("%w: tx %d: truncated page entry", ErrCorruptedPayload, h.transactionID)
		}
		pageNumber := int64(binary.LittleEndian.Uint64(payload[off:]))
		count := int(binary.LittleEndian.Uint32(payload[off+8:]))
		off += pageEntryHeaderSize
		size := count * storage.PageSize
		if count <= 0 || off+size > len(payload) {
			return nil, fmt.Errorf("%w: tx %d: page %d claims %d pages", ErrCorruptedPayload, h.transactionID, pageNumber, count)
		}
		rec.Pages = append(rec.Pages, PageImage{PageNumber: pageNumber, Data: payload[off : off+size]})
		off += size
		pages += count
	}
	if pages != h.pageCount {
		return nil, fmt.Errorf("%w: tx %d: %d pages, header says %d", ErrCorruptedPayload, h.transactionID, pages, h.pageCount)
	}
	return rec, nil
}
