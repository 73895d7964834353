// Package table stores schema-described rows on top of the environment's
// trees.
//
// A table has a primary key, the bytes of one row field, and any number
// of fixed-size indexes over 8-byte big-endian integer fields. Each index
// is a fixed-size tree mapping the field value to the row id, so rows can
// be walked in index order with SeekForwardFrom and SeekBackwardFrom.
//
// The schema is written into the table's root tree under SchemasSlice
// when the table is created and checked against the caller's schema
// whenever it is opened for writing.
package table
