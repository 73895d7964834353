package env

import (
	"fmt"
	"os"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/journal"
)

// recover applies every journaled transaction newer than the header to
// the data file. A torn tail is cut and forgotten; anything else that
// does not line up is catastrophic and the environment does not open.
func (e *Environment) recover() (journal.ReplayResult, error) {
	var last *commitMeta
	res, err := journal.Replay(e.paths.Journal, e.header.TransactionID, e.opts.EncryptionKey, e.opts.Logger,
		func(rec *journal.Record) error {
			if err := e.pager.Grow(rec.NextPageNumber * storage.PageSize); err != nil {
				return err
			}
			for _, p := range rec.Pages {
				if err := e.pager.WriteAt(p.Data, p.PageNumber); err != nil {
					return fmt.Errorf("apply page %d of tx %d: %w", p.PageNumber, rec.TransactionID, err)
				}
			}
			last = &commitMeta{
				transactionID:  rec.TransactionID,
				root:           rec.Root,
				nextPageNumber: rec.NextPageNumber,
				freelistPage:   rec.FreelistPage,
			}
			return nil
		})
	if err != nil {
		return res, storage.NewCatastrophicError("recovery", err)
	}

	if last != nil {
		if err := e.pager.Sync(); err != nil {
			return res, storage.NewCatastrophicError("recovery", err)
		}
		e.header.TransactionID = last.transactionID
		e.header.Root = last.root
		e.header.NextPageNumber = last.nextPageNumber
		e.header.FreelistPage = last.freelistPage
		if len(res.Files) > 0 {
			e.header.LastFlushedJournal = res.Files[len(res.Files)-1]
		}
		if err := e.headers.Write(e.header.Serialize()); err != nil {
			return res, storage.NewCatastrophicError("recovery", err)
		}
		e.logger.Info("journal recovered",
			"transactions", res.Applied,
			"lastTx", res.LastTransaction,
			"files", len(res.Files))
	}
	if res.TornFile != 0 {
		e.logger.Warn("discarded torn journal tail",
			"file", journal.FileName(res.TornFile), "offset", res.TornOffset)
	}

	if err := e.verifyRoot(); err != nil {
		return res, err
	}

	// Everything the journal holds is in the data file now.
	for _, n := range res.Files {
		if err := os.Remove(journal.FilePath(e.paths.Journal, n)); err != nil && !os.IsNotExist(err) {
			return res, err
		}
	}
	return res, nil
}

// verifyRoot checks that the root page the header names is a tree page.
func (e *Environment) verifyRoot() error {
	root := e.header.Root
	if root.RootPage == storage.InvalidPage {
		return nil
	}
	if root.RootPage >= e.header.NextPageNumber {
		return storage.NewCatastrophicError("verify root page",
			fmt.Errorf("root page %d beyond the %d allocated pages", root.RootPage, e.header.NextPageNumber))
	}
	p, err := e.readDataPage(root.RootPage)
	if err != nil {
		return storage.NewCatastrophicError("verify root page", err)
	}
	if !p.IsLeaf() && !p.IsBranch() {
		return storage.NewCatastrophicError("verify root page",
			fmt.Errorf("page %d: %w: %s", root.RootPage, storage.ErrInvalidPageType, p.Flags()))
	}
	return nil
}
