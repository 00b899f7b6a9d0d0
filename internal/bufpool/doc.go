// Package bufpool recycles frame-sized byte buffers by power-of-two size class.
//
// Pixel work allocates the same few buffer sizes once per frame; routing those
// allocations through a Pool keeps the garbage collector out of the per-frame
// hot path. Buffers above the pooling ceiling are allocated exactly and simply
// dropped on release.
//
// A Buffer has exactly one owner at a time. Whoever holds it either hands it
// on (to a task, to the caller) or returns it with Release, after which the
// bytes are zeroed and must not be touched again.
package bufpool
