package platform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
)

// Header file names. Writes alternate between the two so that a torn write
// always leaves the previous copy intact.
const (
	HeaderFileOne = "headers.one"
	HeaderFileTwo = "headers.two"

	headerMagic        = 0x52444856 // "VHDR"
	headerEnvelopeSize = 20
)

// Header store errors.
var (
	ErrHeaderCorrupt  = errors.New("platform: both header copies are corrupt")
	ErrHeaderTooLarge = errors.New("platform: header data too large")
)

// HeaderStore persists the small environment header durably.
type HeaderStore struct {
	shim *Shim
	dir  string

	mu   sync.Mutex
	seq  uint64
	slot int // index of the file holding the latest copy, -1 when none
}

// OpenHeaderStore reads both header copies in dir and returns the most
// recent valid payload, or nil when no header has been written yet.
func OpenHeaderStore(shim *Shim, dir string) (*HeaderStore, []byte, error) {
	h := &HeaderStore{shim: shim, dir: dir, slot: -1}

	var (
		best    []byte
		present int
	)
	for i, name := range []string{HeaderFileOne, HeaderFileTwo} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		present++
		seq, data, ok := decodeEnvelope(raw)
		if !ok {
			continue
		}
		if best == nil || seq > h.seq {
			best, h.seq, h.slot = data, seq, i
		}
	}
	if present > 0 && best == nil {
		return nil, nil, ErrHeaderCorrupt
	}
	return h, best, nil
}

// Write stores data in the slot not holding the latest copy and syncs it.
func (h *HeaderStore) Write(data []byte) error {
	if len(data) > 1<<20 {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(data))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	slot := 0
	if h.slot == 0 {
		slot = 1
	}
	name := HeaderFileOne
	if slot == 1 {
		name = HeaderFileTwo
	}

	buf := make([]byte, headerEnvelopeSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint64(buf[4:12], h.seq+1)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(data)))
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(data))
	copy(buf[headerEnvelopeSize:], data)

	f, err := os.OpenFile(filepath.Join(h.dir, name), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Truncate(int64(len(buf))); err != nil {
		return fmt.Errorf("truncate %s: %w", name, err)
	}
	if err := h.shim.SyncFile(f); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}

	h.seq++
	h.slot = slot
	return nil
}

// Sequence returns the sequence number of the latest copy.
func (h *HeaderStore) Sequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func decodeEnvelope(raw []byte) (uint64, []byte, bool) {
	if len(raw) < headerEnvelopeSize || binary.LittleEndian.Uint32(raw[0:4]) != headerMagic {
		return 0, nil, false
	}
	seq := binary.LittleEndian.Uint64(raw[4:12])
	n := int(binary.LittleEndian.Uint32(raw[12:16]))
	if headerEnvelopeSize+n > len(raw) {
		return 0, nil, false
	}
	data := raw[headerEnvelopeSize : headerEnvelopeSize+n]
	if crc32.ChecksumIEEE(data) != binary.LittleEndian.Uint32(raw[16:20]) {
		return 0, nil, false
	}
	return seq, data, true
}
