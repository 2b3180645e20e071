// Package cache provides the process-wide expiring key/value store used to
// memoize short-lived upstream credentials and idempotent lookups.
//
// A single Store is constructed at process start (see cmd/server) and handed to
// every component that needs it. Entries carry an optional expiry; an expired
// entry is treated as absent and removed the moment it is read. There is no
// background sweep, no LRU and no size bound, so callers own key cardinality.
package cache
