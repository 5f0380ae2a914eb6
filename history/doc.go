// Package history implements the RTPS history cache: the ordered
// store of samples (CacheChanges) a writer has produced and a reader
// has received, keyed by sequence number.
package history
