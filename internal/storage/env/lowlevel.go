package env

import (
	"fmt"
	"sort"
	"time"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/journal"
	"github.com/KilimcininKorOglu/voron/internal/storage/scratch"
)

// TransactionFlags selects the kind of transaction to open.
type TransactionFlags int

const (
	// Read opens a read-only transaction on a snapshot.
	Read TransactionFlags = iota
	// ReadWrite opens the single write transaction.
	ReadWrite
)

// String returns the string representation of the flags.
func (f TransactionFlags) String() string {
	switch f {
	case Read:
		return "Read"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Unknown"
	}
}

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	// TxStarted is a transaction that has not modified anything.
	TxStarted TxState = iota
	// TxModifying is a write transaction holding modified pages in scratch.
	TxModifying
	// TxCommitting is a write transaction appending to the journal.
	TxCommitting
	// TxCommitted is a write transaction whose pages are visible.
	TxCommitted
	// TxRolledBack is a write transaction that was abandoned.
	TxRolledBack
	// TxDisposed is a transaction that released its snapshot.
	TxDisposed
)

// String returns the string representation of a TxState.
func (s TxState) String() string {
	switch s {
	case TxStarted:
		return "Started"
	case TxModifying:
		return "Modifying"
	case TxCommitting:
		return "Committing"
	case TxCommitted:
		return "Committed"
	case TxRolledBack:
		return "RolledBack"
	case TxDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// LowLevelTransaction resolves page numbers against a snapshot. A write
// transaction copies every page it modifies into scratch memory; the copies
// are only visible to it until it commits.
//
// A LowLevelTransaction is not safe for concurrent use.
type LowLevelTransaction struct {
	env   *Environment
	id    uint64
	write bool
	pin   *snapshotPin
	base  *committedState
	state TxState

	// Write transactions only.
	dirty          map[int64]*scratch.Buffer
	freeList       *freeList
	freeListDirty  bool
	nextPageNumber int64
	freelistPage   int64
}

// ID returns the transaction id: the id of the snapshot for a read
// transaction, the id the commit will carry for a write transaction.
func (tx *LowLevelTransaction) ID() uint64 {
	return tx.id
}

// IsWriteTransaction reports whether tx may modify pages.
func (tx *LowLevelTransaction) IsWriteTransaction() bool {
	return tx.write
}

// State returns the lifecycle state.
func (tx *LowLevelTransaction) State() TxState {
	return tx.state
}

// NumberOfModifiedPages returns how many page runs tx holds in scratch.
func (tx *LowLevelTransaction) NumberOfModifiedPages() int {
	return len(tx.dirty)
}

func (tx *LowLevelTransaction) checkOpen() error {
	if tx.state >= TxCommitted {
		return storage.ErrTransactionDisposed
	}
	return nil
}

func (tx *LowLevelTransaction) checkWrite() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !tx.write {
		return storage.ErrReadOnlyTransaction
	}
	return nil
}

// GetPage returns the page as of the snapshot, or tx's own copy of it.
// The page must not be written.
func (tx *LowLevelTransaction) GetPage(pageNumber int64) (storage.Page, error) {
	if err := tx.checkOpen(); err != nil {
		return storage.Page{}, err
	}
	if buf, ok := tx.dirty[pageNumber]; ok {
		return buf.Page(), nil
	}
	if v, ok := tx.base.pages.get(pageNumber); ok {
		return v.buffer.Page(), nil
	}
	if pageNumber <= storage.InvalidPage || pageNumber >= tx.base.nextPageNumber {
		return storage.Page{}, fmt.Errorf("page %d: %w: outside the %d allocated pages",
			pageNumber, storage.ErrPageMismatch, tx.base.nextPageNumber)
	}
	p, err := tx.env.readDataPage(pageNumber)
	if err != nil {
		return storage.Page{}, tx.env.fail("read page", err)
	}
	return p, nil
}

// ModifyPage returns a writable copy of the page private to tx.
func (tx *LowLevelTransaction) ModifyPage(pageNumber int64) (storage.Page, error) {
	if err := tx.checkWrite(); err != nil {
		return storage.Page{}, err
	}
	if buf, ok := tx.dirty[pageNumber]; ok {
		return buf.Page(), nil
	}
	if tx.freeList.freed(pageNumber) {
		return storage.Page{}, fmt.Errorf("%w: page %d is free", storage.ErrInvalidOperation, pageNumber)
	}
	current, err := tx.GetPage(pageNumber)
	if err != nil {
		return storage.Page{}, err
	}
	buf, err := tx.env.scratch.Allocate(current.Size() / storage.PageSize)
	if err != nil {
		return storage.Page{}, err
	}
	copy(buf.Bytes(), current.Bytes())
	tx.dirty[pageNumber] = buf
	tx.state = TxModifying
	return buf.Page(), nil
}

// AllocatePage returns a zeroed run of numberOfPages pages, reusing free
// pages when a long enough run exists.
func (tx *LowLevelTransaction) AllocatePage(numberOfPages int) (storage.Page, error) {
	if err := tx.checkWrite(); err != nil {
		return storage.Page{}, err
	}
	if numberOfPages <= 0 {
		return storage.Page{}, fmt.Errorf("%w: allocate %d pages", storage.ErrInvalidOperation, numberOfPages)
	}
	pageNumber := tx.freeList.allocate(numberOfPages)
	if pageNumber != storage.InvalidPage {
		tx.freeListDirty = true
	} else {
		pageNumber = tx.nextPageNumber
		tx.nextPageNumber += int64(numberOfPages)
	}

	buf, err := tx.env.scratch.Allocate(numberOfPages)
	if err != nil {
		return storage.Page{}, err
	}
	clear(buf.Bytes())
	p := buf.Page()
	p.SetPageNumber(pageNumber)
	tx.dirty[pageNumber] = buf
	tx.state = TxModifying
	return p, nil
}

// FreePage gives a page run back. Readers of older snapshots may still
// read it; it becomes allocatable once they are gone.
func (tx *LowLevelTransaction) FreePage(pageNumber int64, numberOfPages int) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	if err := tx.freeList.free(tx.id, pageNumber, numberOfPages); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidOperation, err)
	}
	tx.freeListDirty = true
	tx.state = TxModifying
	if buf, ok := tx.dirty[pageNumber]; ok {
		delete(tx.dirty, pageNumber)
		return tx.env.scratch.Release(buf)
	}
	return nil
}

// commit appends tx to the journal and publishes it. A transaction that
// changed nothing ends without consuming a transaction id.
func (tx *LowLevelTransaction) commit(root storage.TreeState) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	env := tx.env
	if err := env.CatastrophicFailure(); err != nil {
		tx.rollback()
		return err
	}
	if len(tx.dirty) == 0 && !tx.freeListDirty {
		tx.rollback()
		return nil
	}

	tx.state = TxCommitting
	if tx.freeListDirty {
		if err := tx.writeFreeList(); err != nil {
			tx.rollback()
			return err
		}
	}

	rec := &journal.Record{
		TransactionID:  tx.id,
		NextPageNumber: tx.nextPageNumber,
		FreelistPage:   tx.freelistPage,
		Root:           root,
		Timestamp:      time.Now(),
		Pages:          make([]journal.PageImage, 0, len(tx.dirty)),
	}
	for pn, buf := range tx.dirty {
		rec.Pages = append(rec.Pages, journal.PageImage{PageNumber: pn, Data: buf.Bytes()})
	}
	sort.Slice(rec.Pages, func(i, j int) bool { return rec.Pages[i].PageNumber < rec.Pages[j].PageNumber })

	if _, err := env.journal.Append(rec); err != nil {
		tx.rollback()
		return fmt.Errorf("commit transaction %d: %w", tx.id, err)
	}

	env.publish(tx, root)
	tx.dirty = nil
	tx.state = TxCommitted
	tx.end()
	env.logger.Debug("transaction committed", "tx", tx.id, "pages", rec.PageCount())
	return nil
}

// writeFreeList replaces the persisted freelist with the current one.
// The old run is freed first so that it is part of the list it writes.
func (tx *LowLevelTransaction) writeFreeList() error {
	if tx.freelistPage != storage.InvalidPage {
		old, err := tx.GetPage(tx.freelistPage)
		if err != nil {
			return err
		}
		if err := tx.FreePage(tx.freelistPage, old.NumberOfPages()); err != nil {
			return err
		}
		tx.freelistPage = storage.InvalidPage
	}
	if tx.freeList.count() == 0 {
		return nil
	}

	// Allocation can only shrink the list, so the run sized before it
	// always fits what is written after it.
	n := storage.PagesForSize(tx.freeList.size())
	p, err := tx.AllocatePage(n)
	if err != nil {
		return err
	}
	if err := tx.freeList.write(p); err != nil {
		return err
	}
	tx.freelistPage = p.PageNumber()
	return nil
}

// rollback releases everything tx allocated. Its scratch copies were never
// visible to anyone else.
func (tx *LowLevelTransaction) rollback() {
	if tx.state >= TxCommitted {
		return
	}
	if tx.write {
		buffers := make([]*scratch.Buffer, 0, len(tx.dirty))
		for _, buf := range tx.dirty {
			buffers = append(buffers, buf)
		}
		if err := tx.env.scratch.Release(buffers...); err != nil {
			tx.env.logger.Warn("failed to release scratch on rollback", "tx", tx.id, "error", err)
		}
		tx.dirty = nil
	}
	tx.state = TxRolledBack
	tx.end()
}

// end releases the snapshot and, for a writer, the write lock.
func (tx *LowLevelTransaction) end() {
	tx.env.unpin(tx.pin)
	if tx.write {
		tx.env.releaseWriteLock()
	}
}

// Dispose ends the transaction, rolling back a write transaction that did
// not commit. It is safe to call more than once.
func (tx *LowLevelTransaction) Dispose() {
	switch tx.state {
	case TxDisposed:
		return
	case TxCommitted, TxRolledBack:
	default:
		tx.rollback()
	}
	tx.state = TxDisposed
}
