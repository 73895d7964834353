// Package env provides the storage environment: transactions, MVCC
// snapshots, the commit path into the journal and the flush path into the
// data file.
//
// # Page Versions
//
// Page numbers never move. A write transaction copies each page it
// modifies into scratch memory and works on the copy. On commit the copies
// are appended to the journal as one record and then published in a
// persistent page table mapping page numbers to their latest committed
// copy:
//
//	reader (tx 7) ---> table@7  { 12: v7, 40: v5 }      data file
//	reader (tx 9) ---> table@9  { 12: v9, 40: v5, 41: v9 }
//
// A reader keeps the table it started with, so it never sees a later
// commit. Pages missing from its table are read from the data file.
//
// # Flushing
//
// The flusher writes, for every page in the table, the newest version no
// older than the oldest active reader needs, syncs the data file, records
// the flushed transaction in the file header and deletes journal files
// that only hold flushed transactions. Flushed versions are dropped from
// the table and their scratch memory is released once no reader can reach
// them.
//
// # Recovery
//
// Open replays journal records newer than the header into the data file.
// A torn record at the tail is cut off; a missing transaction or a root
// page that is not a tree page is a catastrophic failure and Open fails.
//
// # Catastrophic Failures
//
// An unrecoverable error sets a sticky flag, see
// Environment.IsCatastrophicFailureSet. From then on write transactions,
// commits and flushes fail with the stored *storage.CatastrophicError.
// Read transactions keep working on the state committed before.
//
// # Usage
//
//	e, err := env.Open(storage.DefaultEnvironmentOptions(dir))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	tx, err := e.WriteTransaction(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Dispose()
//	users, err := tx.CreateTree("users")
//	if err != nil {
//	    return err
//	}
//	if err := users.Add([]byte("alice"), []byte("...")); err != nil {
//	    return err
//	}
//	return tx.Commit()
package env
