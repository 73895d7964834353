package storage

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// File header constants.
const (
	// FileHeaderSize is the encoded size of a FileHeader.
	FileHeaderSize = 128

	// CurrentVersion is the current file format version.
	CurrentVersion uint32 = 1
)

// Magic identifies a Voron environment header.
var Magic = [4]byte{'V', 'R', 'O', 'N'}

// Errors for file header operations.
var (
	ErrInvalidMagic       = errors.New("invalid magic number: not a voron environment")
	ErrUnsupportedVersion = errors.New("unsupported file format version")
	ErrHeaderChecksum     = errors.New("file header checksum mismatch")
	ErrInvalidHeaderSize  = errors.New("invalid header size")
)

// FileHeader describes the state of the data file as of the last flush.
// Everything committed after TransactionID lives only in the journal.
//
// Layout (little endian):
//   - Bytes 0-3:     Magic ("VRON")
//   - Bytes 4-7:     Version (uint32)
//   - Bytes 8-11:    PageSize (uint32)
//   - Bytes 12-15:   reserved
//   - Bytes 16-31:   DbID (UUID)
//   - Bytes 32-39:   TransactionID, last flushed (uint64)
//   - Bytes 40-47:   NextPageNumber (int64)
//   - Bytes 48-55:   FreelistPage (int64)
//   - Bytes 56-111:  Root tree state (TreeState)
//   - Bytes 112-119: LastFlushedJournal (int64)
//   - Bytes 120-123: FlushedAt, unix seconds (uint32)
//   - Bytes 124-127: Checksum, CRC32 of bytes 0-123
type FileHeader struct {
	Magic              [4]byte
	Version            uint32
	PageSize           uint32
	DbID               uuid.UUID
	TransactionID      uint64
	NextPageNumber     int64
	FreelistPage       int64
	Root               TreeState
	LastFlushedJournal int64
	FlushedAt          time.Time
	Checksum           uint32
}

// NewFileHeader creates a header for a brand new environment.
func NewFileHeader() *FileHeader {
	return &FileHeader{
		Magic:          Magic,
		Version:        CurrentVersion,
		PageSize:       PageSize,
		DbID:           uuid.New(),
		NextPageNumber: 1, // page 0 is never handed out
	}
}

// Serialize writes the header to a new FileHeaderSize byte slice.
func (h *FileHeader) Serialize() []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	copy(buf[16:32], h.DbID[:])
	binary.LittleEndian.PutUint64(buf[32:40], h.TransactionID)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.NextPageNumber))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.FreelistPage))
	h.Root.MarshalTo(buf[56:112])
	binary.LittleEndian.PutUint64(buf[112:120], uint64(h.LastFlushedJournal))
	if !h.FlushedAt.IsZero() {
		binary.LittleEndian.PutUint32(buf[120:124], uint32(h.FlushedAt.Unix()))
	}
	h.Checksum = crc32.ChecksumIEEE(buf[:124])
	binary.LittleEndian.PutUint32(buf[124:128], h.Checksum)
	return buf
}

// Deserialize reads the header from buf and validates it.
func (h *FileHeader) Deserialize(buf []byte) error {
	if len(buf) < FileHeaderSize {
		return ErrInvalidHeaderSize
	}
	copy(h.Magic[:], buf[0:4])
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	h.Checksum = binary.LittleEndian.Uint32(buf[124:128])
	if crc32.ChecksumIEEE(buf[:124]) != h.Checksum {
		return ErrHeaderChecksum
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	if h.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	h.PageSize = binary.LittleEndian.Uint32(buf[8:12])
	if h.PageSize != PageSize {
		return ErrInvalidPageSize
	}
	copy(h.DbID[:], buf[16:32])
	h.TransactionID = binary.LittleEndian.Uint64(buf[32:40])
	h.NextPageNumber = int64(binary.LittleEndian.Uint64(buf[40:48]))
	h.FreelistPage = int64(binary.LittleEndian.Uint64(buf[48:56]))
	root, err := UnmarshalTreeState(buf[56:112])
	if err != nil {
		return err
	}
	h.Root = root
	h.LastFlushedJournal = int64(binary.LittleEndian.Uint64(buf[112:120]))
	if ts := binary.LittleEndian.Uint32(buf[120:124]); ts != 0 {
		h.FlushedAt = time.Unix(int64(ts), 0).UTC()
	}
	return nil
}
