package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/memory"
	"github.com/KilimcininKorOglu/voron/internal/platform"
	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/journal"
	"github.com/KilimcininKorOglu/voron/internal/storage/scratch"
)

// Recorder receives every batch applied through Environment.Write once it
// has committed.
type Recorder interface {
	RecordBatch(batch *WriteBatch) error
}

// committedState is what a transaction sees when it starts. It is never
// modified after being published; commits and flushes publish a new one.
type committedState struct {
	transactionID  uint64
	generation     uint64
	root           storage.TreeState
	nextPageNumber int64
	freelistPage   int64
	pages          pageTable
}

// commitMeta is what the file header needs to describe a transaction.
type commitMeta struct {
	transactionID  uint64
	root           storage.TreeState
	nextPageNumber int64
	freelistPage   int64
}

func (s *committedState) meta() commitMeta {
	return commitMeta{
		transactionID:  s.transactionID,
		root:           s.root,
		nextPageNumber: s.nextPageNumber,
		freelistPage:   s.freelistPage,
	}
}

// snapshotPin keeps the pages of a committed state alive.
type snapshotPin struct {
	transactionID uint64
	generation    uint64
	internal      bool // held by the flusher, not by a transaction
}

// Environment owns the data file, the journal, scratch memory and the
// committed state of one store. Any number of read transactions may run
// alongside at most one write transaction.
type Environment struct {
	opts   storage.EnvironmentOptions
	paths  storage.StoragePaths
	logger logging.Logger

	shim     *platform.Shim
	dataFile *os.File
	pager    *platform.Pager
	headers  *platform.HeaderStore
	header   storage.FileHeader // last header written, guarded by flushMu

	journal *journal.Writer
	pool    *memory.BuffersPool
	ownPool bool
	scratch *scratch.Space

	// writeLock holds a token while a write transaction is open.
	writeLock chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	current  *committedState
	history  []commitMeta // commits not yet in the data file
	freeList *freeList
	pins     map[*snapshotPin]struct{}
	closed   bool
	recorder Recorder

	flushMu     sync.Mutex
	flushSignal chan struct{}
	stopFlusher context.CancelFunc
	flusher     *errgroup.Group

	catastrophic atomic.Pointer[storage.CatastrophicError]
}

// Open opens the environment at opts.BasePath, creating it when empty and
// recovering committed transactions from the journal otherwise.
func Open(opts storage.EnvironmentOptions) (*Environment, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	shim, err := platform.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve platform: %w", err)
	}
	paths, err := storage.ResolvePaths(opts)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	e := &Environment{
		opts:        opts,
		paths:       paths,
		logger:      opts.Logger.WithComponent("environment"),
		shim:        shim,
		pool:        opts.Pool,
		writeLock:   make(chan struct{}, 1),
		done:        make(chan struct{}),
		pins:        make(map[*snapshotPin]struct{}),
		flushSignal: make(chan struct{}, 1),
	}
	if e.pool == nil {
		e.pool = memory.NewBuffersPool(memory.PoolOptions{Logger: opts.Logger})
		e.ownPool = true
	}
	e.scratch = scratch.New(e.pool, "scratch")

	if err := e.open(); err != nil {
		e.release()
		return nil, err
	}

	if !opts.ManualFlush {
		ctx, cancel := context.WithCancel(context.Background())
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			e.runFlusher(ctx)
			return nil
		})
		e.stopFlusher, e.flusher = cancel, g
	}

	e.logger.Info("environment opened",
		"path", paths.Base,
		"dbId", e.header.DbID.String(),
		"transaction", e.current.transactionID,
		"dataFile", humanize.IBytes(uint64(e.pager.Size())))
	return e, nil
}

func (e *Environment) open() error {
	f, err := os.OpenFile(e.paths.DataFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	e.dataFile = f
	if e.pager, err = platform.OpenPager(e.shim, f, storage.PageSize); err != nil {
		return err
	}

	headers, raw, err := platform.OpenHeaderStore(e.shim, e.paths.Base)
	if err != nil {
		return storage.NewCatastrophicError("read header", err)
	}
	e.headers = headers

	fresh := raw == nil
	if fresh {
		e.header = *storage.NewFileHeader()
		if err := e.pager.Grow(e.opts.InitialFileSize); err != nil {
			return err
		}
		if err := e.headers.Write(e.header.Serialize()); err != nil {
			return err
		}
	} else if err := e.header.Deserialize(raw); err != nil {
		return storage.NewCatastrophicError("read header", err)
	}

	res, err := e.recover()
	if err != nil {
		return err
	}

	e.journal, err = journal.OpenWriter(journal.WriterOptions{
		Dir:         e.paths.Journal,
		MaxFileSize: e.opts.MaxJournalFileSize,
		Sync:        e.opts.SyncJournal,
		Key:         e.opts.EncryptionKey,
		SyncFile:    e.shim.SyncFile,
		NextNumber:  res.NextFileNumber(),
		Logger:      e.opts.Logger,
	})
	if err != nil {
		return err
	}

	e.current = &committedState{
		transactionID:  e.header.TransactionID,
		generation:     1,
		root:           e.header.Root,
		nextPageNumber: e.header.NextPageNumber,
		freelistPage:   e.header.FreelistPage,
		pages:          newPageTable(),
	}
	e.freeList = newFreeList()
	if e.header.FreelistPage != storage.InvalidPage {
		p, err := e.readDataPage(e.header.FreelistPage)
		if err != nil {
			return err
		}
		if err := e.freeList.read(p); err != nil {
			return storage.NewCatastrophicError("read freelist", err)
		}
	}

	if e.header.Root.RootPage == storage.InvalidPage {
		return e.bootstrap()
	}
	return nil
}

// bootstrap commits the first transaction, which creates the root tree.
func (e *Environment) bootstrap() error {
	tx, err := e.CreateWriteTransaction(e.opts.WriteTransactionTimeout)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Options returns the options the environment was opened with.
func (e *Environment) Options() storage.EnvironmentOptions {
	return e.opts
}

// Paths returns the resolved directories.
func (e *Environment) Paths() storage.StoragePaths {
	return e.paths
}

// Header returns a copy of the last header written to disk.
func (e *Environment) Header() storage.FileHeader {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.header
}

// SetDebugJournal attaches a recorder for batches applied through Write.
// Passing nil detaches it.
func (e *Environment) SetDebugJournal(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

func (e *Environment) debugJournal() Recorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder
}

// ============================================================================
// Catastrophic failures
// ============================================================================

// IsCatastrophicFailureSet reports whether the environment has seen an
// unrecoverable error. Once set it stays set.
func (e *Environment) IsCatastrophicFailureSet() bool {
	return e.catastrophic.Load() != nil
}

// CatastrophicFailure returns the first unrecoverable error, or nil.
func (e *Environment) CatastrophicFailure() error {
	if ce := e.catastrophic.Load(); ce != nil {
		return ce
	}
	return nil
}

// fail records err as the catastrophic failure of op and returns the
// failure that is now set, which may be an earlier one.
func (e *Environment) fail(op string, err error) error {
	var ce *storage.CatastrophicError
	if !errors.As(err, &ce) {
		ce = storage.NewCatastrophicError(op, err)
	}
	if e.catastrophic.CompareAndSwap(nil, ce) {
		e.logger.Error("catastrophic failure, the environment refuses further writes",
			"op", ce.Op, "error", ce.Err)
	}
	return e.catastrophic.Load()
}

// ============================================================================
// Snapshots
// ============================================================================

// pinCurrent pins the latest committed state for a transaction.
func (e *Environment) pinCurrent() (*snapshotPin, *committedState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, storage.ErrEnvironmentClosed
	}
	st := e.current
	pin := &snapshotPin{transactionID: st.transactionID, generation: st.generation}
	e.pins[pin] = struct{}{}
	return pin, st, nil
}

// pinOldest pins the oldest state any reader still sees, so the pages the
// flusher needs outlive the readers that hold them today.
func (e *Environment) pinOldest() (*snapshotPin, *committedState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	txID, generation := e.oldestLocked()
	pin := &snapshotPin{transactionID: txID, generation: generation, internal: true}
	e.pins[pin] = struct{}{}
	return pin, e.current
}

func (e *Environment) unpin(pin *snapshotPin) {
	e.mu.Lock()
	delete(e.pins, pin)
	_, generation := e.oldestLocked()
	e.mu.Unlock()
	e.collect(generation)
}

// oldestLocked returns the transaction id and generation of the oldest
// pinned state, or of the current state when nothing is pinned.
func (e *Environment) oldestLocked() (uint64, uint64) {
	txID, generation := e.current.transactionID, e.current.generation
	for pin := range e.pins {
		txID = min(txID, pin.transactionID)
		generation = min(generation, pin.generation)
	}
	return txID, generation
}

func (e *Environment) activeTransactionsLocked() int {
	n := 0
	for pin := range e.pins {
		if !pin.internal {
			n++
		}
	}
	return n
}

// collect releases scratch buffers no pinned state can reach.
func (e *Environment) collect(oldestGeneration uint64) {
	if n, err := e.scratch.Collect(oldestGeneration); err != nil {
		e.logger.Warn("failed to release scratch buffers", "error", err)
	} else if n > 0 {
		e.logger.Debug("scratch buffers released", "count", n, "generation", oldestGeneration)
	}
}

// ============================================================================
// Transactions
// ============================================================================

// ReadTransaction opens a read transaction on the latest committed state.
func (e *Environment) ReadTransaction() (*Transaction, error) {
	llt, err := e.beginRead()
	if err != nil {
		return nil, err
	}
	return newTransaction(llt)
}

// WriteTransaction opens the write transaction, waiting at most the
// configured WriteTransactionTimeout or until ctx is done.
func (e *Environment) WriteTransaction(ctx context.Context) (*Transaction, error) {
	llt, err := e.beginWrite(ctx, e.opts.WriteTransactionTimeout)
	if err != nil {
		return nil, err
	}
	return newTransaction(llt)
}

// CreateWriteTransaction opens the write transaction, waiting at most
// timeout for the current writer to finish.
func (e *Environment) CreateWriteTransaction(timeout time.Duration) (*Transaction, error) {
	llt, err := e.beginWrite(context.Background(), timeout)
	if err != nil {
		return nil, err
	}
	return newTransaction(llt)
}

// NewTransaction opens a transaction of the given kind.
func (e *Environment) NewTransaction(ctx context.Context, flags TransactionFlags) (*Transaction, error) {
	switch flags {
	case Read:
		return e.ReadTransaction()
	case ReadWrite:
		return e.WriteTransaction(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown transaction flags %d", storage.ErrInvalidOperation, flags)
	}
}

func (e *Environment) beginRead() (*LowLevelTransaction, error) {
	pin, st, err := e.pinCurrent()
	if err != nil {
		return nil, err
	}
	return &LowLevelTransaction{
		env:   e,
		id:    st.transactionID,
		pin:   pin,
		base:  st,
		state: TxStarted,
	}, nil
}

func (e *Environment) beginWrite(ctx context.Context, timeout time.Duration) (*LowLevelTransaction, error) {
	if err := e.CatastrophicFailure(); err != nil {
		return nil, err
	}
	if err := e.acquireWriteLock(ctx, timeout); err != nil {
		return nil, err
	}
	if err := e.CatastrophicFailure(); err != nil {
		e.releaseWriteLock()
		return nil, err
	}

	pin, st, err := e.pinCurrent()
	if err != nil {
		e.releaseWriteLock()
		return nil, err
	}
	e.mu.Lock()
	oldest, _ := e.oldestLocked()
	fl := e.freeList.clone()
	e.mu.Unlock()
	fl.release(oldest)

	return &LowLevelTransaction{
		env:            e,
		id:             st.transactionID + 1,
		write:          true,
		pin:            pin,
		base:           st,
		state:          TxStarted,
		dirty:          make(map[int64]*scratch.Buffer),
		freeList:       fl,
		nextPageNumber: st.nextPageNumber,
		freelistPage:   st.freelistPage,
	}, nil
}

func (e *Environment) acquireWriteLock(ctx context.Context, timeout time.Duration) error {
	select {
	case e.writeLock <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e.writeLock <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", storage.ErrWriteTransactionTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return storage.ErrEnvironmentClosed
	}
}

func (e *Environment) releaseWriteLock() {
	<-e.writeLock
}

// publish makes a committed write transaction visible to new readers.
func (e *Environment) publish(llt *LowLevelTransaction, root storage.TreeState) {
	e.mu.Lock()
	prev := e.current
	pages := prev.pages
	var superseded []*scratch.Buffer
	for pn, buf := range llt.dirty {
		v := &pageVersion{buffer: buf, transactionID: llt.id}
		if old, ok := pages.get(pn); ok {
			v.prev.Store(old)
			superseded = append(superseded, old.buffer)
		}
		pages = pages.set(pn, v)
	}
	next := &committedState{
		transactionID:  llt.id,
		generation:     prev.generation + 1,
		root:           root,
		nextPageNumber: llt.nextPageNumber,
		freelistPage:   llt.freelistPage,
		pages:          pages,
	}
	e.current = next
	e.history = append(e.history, next.meta())
	e.freeList = llt.freeList
	unflushed := pages.len()
	e.mu.Unlock()

	e.scratch.ReleaseAfter(next.generation, superseded...)
	if unflushed >= e.opts.FlushThresholdPages {
		select {
		case e.flushSignal <- struct{}{}:
		default:
		}
	}
}

// ============================================================================
// Data file
// ============================================================================

// readDataPage reads a page, or a page run, straight from the data file.
func (e *Environment) readDataPage(pageNumber int64) (storage.Page, error) {
	buf, err := e.pager.Read(pageNumber, 1)
	if err != nil {
		return storage.Page{}, err
	}
	p := storage.NewPage(buf)
	if p.PageNumber() != pageNumber {
		return storage.Page{}, fmt.Errorf("data file page %d: %w: header says %d",
			pageNumber, storage.ErrPageMismatch, p.PageNumber())
	}
	if n := p.NumberOfPages(); n > 1 {
		if buf, err = e.pager.Read(pageNumber, n); err != nil {
			return storage.Page{}, err
		}
		p = storage.NewPage(buf)
	}
	return p, nil
}

// ============================================================================
// Stats
// ============================================================================

// EnvironmentStats is a point-in-time view of the environment.
type EnvironmentStats struct {
	TransactionID          uint64
	LastFlushedTransaction uint64
	NextPageNumber         int64
	FreePages              int
	PendingFreePages       int
	UnflushedPages         int
	ActiveTransactions     int
	JournalFiles           int
	DataFileSize           int64
	Scratch                scratch.Stats
	Pool                   memory.PoolStats
	Catastrophic           bool
}

// Stats returns current counters.
func (e *Environment) Stats() EnvironmentStats {
	e.mu.Lock()
	st := e.current
	free, pending := e.freeList.freeCount(), e.freeList.pendingCount()
	active := e.activeTransactionsLocked()
	e.mu.Unlock()

	return EnvironmentStats{
		TransactionID:          st.transactionID,
		LastFlushedTransaction: e.Header().TransactionID,
		NextPageNumber:         st.nextPageNumber,
		FreePages:              free,
		PendingFreePages:       pending,
		UnflushedPages:         st.pages.len(),
		ActiveTransactions:     active,
		JournalFiles:           len(e.journal.Files()),
		DataFileSize:           e.pager.Size(),
		Scratch:                e.scratch.Stats(),
		Pool:                   e.pool.Stats(),
		Catastrophic:           e.IsCatastrophicFailureSet(),
	}
}

// ============================================================================
// Close
// ============================================================================

// Close flushes every committed transaction to the data file and releases
// all resources. It fails with ErrActiveTransactions while transactions
// are open.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.activeTransactionsLocked() > 0 {
		e.mu.Unlock()
		return storage.ErrActiveTransactions
	}
	select {
	case e.writeLock <- struct{}{}:
	default:
		e.mu.Unlock()
		return storage.ErrActiveTransactions
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	if e.stopFlusher != nil {
		e.stopFlusher()
		_ = e.flusher.Wait()
	}

	var errs []error
	if !e.IsCatastrophicFailureSet() {
		if err := e.flush(); err != nil {
			errs = append(errs, fmt.Errorf("final flush: %w", err))
		}
	}
	errs = append(errs, e.release())
	if err := errors.Join(errs...); err != nil {
		return err
	}
	e.logger.Info("environment closed", "path", e.paths.Base)
	return nil
}

// release closes files and frees memory without flushing.
func (e *Environment) release() error {
	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	if e.current != nil {
		var buffers []*scratch.Buffer
		e.current.pages.each(func(_ int64, v *pageVersion) {
			for ; v != nil; v = v.prev.Load() {
				buffers = append(buffers, v.buffer)
			}
		})
		errs = append(errs, e.scratch.Release(buffers...))
	}
	errs = append(errs, e.scratch.Close())
	if e.pager != nil {
		if err := e.pager.Close(); err != nil && !errors.Is(err, platform.ErrPagerClosed) {
			errs = append(errs, err)
		}
	}
	if e.dataFile != nil {
		errs = append(errs, e.dataFile.Close())
	}
	if e.ownPool {
		errs = append(errs, e.pool.Close())
	}
	return errors.Join(errs...)
}
