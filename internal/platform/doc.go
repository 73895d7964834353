// Package platform holds the OS-specific pieces of the storage engine:
// memory mapping of the data file, durable file sync and the double
// buffered header files.
//
// Resolve selects the implementation for the running OS and architecture
// once per process. The environment calls it before touching any file and
// treats a failure as fatal.
package platform
