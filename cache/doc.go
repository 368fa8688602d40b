// Package cache implements the size-bounded, TTL-aware in-memory store backing
// validation result caching and access token revocation.
//
// # Storage model
//
// Every entry carries an absolute deadline and a recorded byte size. The caller
// states on each Set whether the value is stored directly or serialized into a
// byte payload; the cache never inspects value types to decide. Total recorded
// bytes never exceed the configured limit: a Set that would overflow triggers
// inline compaction (expired entries first, then oldest-inserted) until at
// least CompactionPercentage of the limit has been freed.
//
// # Concurrency
//
// Reads and writes go through a concurrent index with no global lock. All
// statistics are atomic counters. A background sweeper removes expired entries
// every ExpirationScanFrequency; overlapping sweeps are impossible, a tick that
// arrives while a sweep is running is skipped outright.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Import other packages of this module.
//   - Decide storage kind from runtime type inspection.
package cache
