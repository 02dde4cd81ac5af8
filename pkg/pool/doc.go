// Package pool provides type-safe object pooling on top of sync.Pool.
//
// Pool[T] recycles any object with an optional reset hook and counts how
// many objects it had to allocate. BufferPool hands out byte slices from
// fixed size buckets so that large, short-lived buffers (read chunks,
// staging regions, JSON encode buffers) are reused across loads instead of
// being reallocated every run.
//
//	buf := pool.Buffers.Get(256 << 10)
//	defer pool.Buffers.Put(buf)
package pool
