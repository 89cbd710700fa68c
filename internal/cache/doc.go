// Package cache stores encoded clips so repeated text skips inference.
// A memory LRU sits in front of a zstd compressed disk store that
// survives restarts.
package cache
