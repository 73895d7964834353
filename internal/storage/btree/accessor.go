package btree

import "github.com/KilimcininKorOglu/voron/internal/storage"

// PageAccessor is the page-level surface of a transaction that a tree
// works through.
type PageAccessor interface {
	// GetPage returns the version of a page (or a whole overflow run)
	// visible to the transaction. The bytes must not be modified.
	GetPage(pageNumber int64) (storage.Page, error)

	// ModifyPage returns a writable copy of a page owned by the
	// transaction, under the same page number.
	ModifyPage(pageNumber int64) (storage.Page, error)

	// AllocatePage returns a zeroed, writable run of numberOfPages
	// contiguous pages whose header carries the first page number.
	AllocatePage(numberOfPages int) (storage.Page, error)

	// FreePage gives a run back to the free space map.
	FreePage(pageNumber int64, numberOfPages int) error
}
