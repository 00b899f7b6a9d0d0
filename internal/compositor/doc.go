// Package compositor splits frames into fixed-size blocks and runs the alpha
// codec kernels for each block on the worker pool.
//
// Blocks of one frame write disjoint regions of the shared output buffers, so
// no per-pixel locking is needed. A frame resolves only when every block has
// finished; any block failure fails the frame and its output buffers go back
// to the buffer pool. Sequence drives many frames at once and hands results
// to a sink strictly in frame order.
package compositor
