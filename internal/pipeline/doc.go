// Package pipeline wires the frame codecs, the worker pool and the ffmpeg
// adapters into the three end-to-end conversions:
//
//   - Pack turns a dual-channel carrier MP4 into an animation container.
//   - BuildCarrier turns a container or a PNG sequence into a carrier MP4.
//   - Unpack extracts a container's frames and audio to a directory.
//
// A Runtime owns the shared buffer pool, worker pool, compositor and job
// ledger. Every run is recorded in the ledger when it is enabled, and
// warnings raised during a run are copied into the job's event list.
package pipeline
