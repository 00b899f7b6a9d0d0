// Package preflight runs environment checks before a pipeline starts and for
// the doctor command: directory access, ffmpeg/ffprobe availability, and the
// encoders the carrier path needs.
package preflight
