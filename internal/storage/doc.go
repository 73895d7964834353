// Package storage provides the core types shared by the Voron storage
// engine.
//
// # Overview
//
// The engine keeps committed state in a single data file of 4KB pages and
// writes every commit to an append-only journal first. This package holds
// what every layer agrees on:
//
//   - Page, a typed view over the raw bytes of a page or page run
//   - FileHeader, the durable description of the last flush
//   - TreeState, the persistent description of a tree
//   - EnvironmentOptions and the resolved StoragePaths
//   - the error classes: retryable, contract violation and fatal
//
// # Page Layout
//
// Every page starts with a 32 byte header followed by its payload:
//
//	+----------------------------------+
//	|  Page header (32 bytes)          |
//	|  number, flags, lower, upper,    |
//	|  entries, overflow, value size   |
//	+----------------------------------+
//	|  Entry offsets ->                |
//	|                                  |
//	|                <- Entry data     |
//	+----------------------------------+
//
// Overflow and freelist runs span several contiguous pages; only the first
// carries a header.
//
// # Errors
//
// Callers classify failures with IsRetryable, IsInvalidOperation and
// IsFatal. A fatal error is a *CatastrophicError or a *SchemaError; once an
// environment reports one it refuses further writes until reopened.
package storage
