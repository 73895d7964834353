package env

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/scratch"
)

// flushConcurrency bounds the page writes in flight during a flush.
const flushConcurrency = 4

// FlushJournal applies every committed transaction that no reader needs
// to see an older version for to the data file, then retires the journal
// files it covered.
func (e *Environment) FlushJournal() error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return storage.ErrEnvironmentClosed
	}
	return e.flush()
}

func (e *Environment) runFlusher(ctx context.Context) {
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.flushSignal:
		}
		if err := e.flush(); err != nil && !e.IsCatastrophicFailureSet() {
			e.logger.Warn("background flush failed", "error", err)
		}
	}
}

type flushRun struct {
	pageNumber int64
	data       []byte
}

func (e *Environment) flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	if err := e.CatastrophicFailure(); err != nil {
		return err
	}

	pin, st := e.pinOldest()
	defer e.unpin(pin)

	upTo := pin.transactionID
	if upTo <= e.header.TransactionID {
		return nil
	}
	meta, ok := e.metaFor(upTo, st)
	if !ok {
		return e.fail("flush", fmt.Errorf("no commit found for transaction %d", upTo))
	}

	var runs []flushRun
	st.pages.each(func(pn int64, v *pageVersion) {
		if v = v.visibleAt(upTo); v != nil {
			runs = append(runs, flushRun{pageNumber: pn, data: v.buffer.Bytes()})
		}
	})

	start := time.Now()
	if err := e.pager.Grow(meta.nextPageNumber * storage.PageSize); err != nil {
		return e.fail("flush", err)
	}
	g := new(errgroup.Group)
	g.SetLimit(flushConcurrency)
	for _, r := range runs {
		r := r
		g.Go(func() error {
			return e.pager.WriteAt(r.data, r.pageNumber)
		})
	}
	if err := g.Wait(); err != nil {
		return e.fail("flush", err)
	}
	if err := e.pager.Sync(); err != nil {
		return e.fail("sync data file", err)
	}

	header := e.header
	header.TransactionID = meta.transactionID
	header.NextPageNumber = meta.nextPageNumber
	header.FreelistPage = meta.freelistPage
	header.Root = meta.root
	header.FlushedAt = time.Now().UTC()
	if files := e.journal.Files(); len(files) > 0 {
		header.LastFlushedJournal = files[len(files)-1].Number
	}
	if err := e.headers.Write(header.Serialize()); err != nil {
		return e.fail("write header", err)
	}
	e.header = header

	retired, err := e.journal.Retire(upTo)
	if err != nil {
		// The files are replayed and skipped at the next open.
		e.logger.Warn("failed to retire journal files", "error", err)
	}

	e.dropFlushed(upTo, runs)
	e.logger.Debug("journal flushed",
		"tx", upTo,
		"pages", len(runs),
		"retired", len(retired),
		"duration", time.Since(start))
	return nil
}

// metaFor returns the state committed by txID.
func (e *Environment) metaFor(txID uint64, st *committedState) (commitMeta, bool) {
	if st.transactionID == txID {
		return st.meta(), true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.history {
		if m.transactionID == txID {
			return m, true
		}
	}
	return commitMeta{}, false
}

// dropFlushed publishes a state without the versions now in the data
// file.
func (e *Environment) dropFlushed(upTo uint64, runs []flushRun) {
	e.mu.Lock()
	cur := e.current
	pages := cur.pages
	var released []*scratch.Buffer
	for _, r := range runs {
		v, ok := pages.get(r.pageNumber)
		if !ok {
			continue
		}
		if v.transactionID <= upTo {
			pages = pages.remove(r.pageNumber)
			released = append(released, v.buffer)
			continue
		}
		v.unlinkFlushed(upTo)
	}
	next := *cur
	next.generation++
	next.pages = pages
	e.current = &next

	kept := e.history[:0]
	for _, m := range e.history {
		if m.transactionID > upTo {
			kept = append(kept, m)
		}
	}
	e.history = kept
	e.mu.Unlock()

	e.scratch.ReleaseAfter(next.generation, released...)
}
