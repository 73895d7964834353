// Package memory provides page-aligned native buffers for the storage engine.
//
// BuffersPool hands out buffers rounded up to a power of two, starting at one
// page. Buffers up to MaxPooledSize are kept on per-size-class lock-free
// stacks when returned; larger ones go straight back to the OS. Every buffer
// is zeroed on return, since it may have held decrypted page contents.
//
// A LowMemoryMonitor (or any caller) can flip the pool into low-memory mode,
// in which returned buffers are released immediately and all pooled memory
// is drained.
//
// The pool has an explicit lifetime: the environment creates one when none
// is injected and closes it on shutdown. A single pool may be shared by
// several environments.
package memory
