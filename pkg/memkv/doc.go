// Package memkv is a sharded, thread-safe in-memory byte store with per-key
// TTLs. It backs the in-process name service: contact records and port
// properties live here as encoded blobs.
//
// Values are copied on the way in and on the way out, so callers may reuse
// their buffers. Expired keys disappear lazily on access and eagerly from a
// background goroutine that sleeps until the nearest deadline.
//
// Options.MaxBytes caps the total size of stored values; writes that would
// cross it are refused rather than evicting anything.
package memkv
