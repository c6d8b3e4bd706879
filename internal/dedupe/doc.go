// ABOUTME: Package doc for inbound envelope deduplication
// ABOUTME: TTL-bounded seen-set used by the reconciler

// Package dedupe tracks recently seen server message ids so the reconciler
// can drop duplicate envelope deliveries. The set is bounded by both a TTL
// and a maximum size.
package dedupe
