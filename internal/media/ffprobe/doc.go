// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Helper methods on Result resolve the carrier geometry: frame rate from
// r_frame_rate, frame count from nb_frames or duration, and audio presence.
package ffprobe
